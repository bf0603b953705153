package contracts

import (
	"backup-service/internal/core/domain"
	"backup-service/schemas"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiledSchemas = make(map[string]*jsonschema.Schema)

// Текущая версия формата файла бэкапа
const BackupSchemaV1 = "backups/v1.json"

func init() {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	// Сначала регистрируем все схемы как ресурсы, чтобы работали $ref между ними
	var paths []string
	err := fs.WalkDir(schemas.SchemasFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		file, err := schemas.SchemasFS.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := compiler.AddResource(path, file); err != nil {
			return fmt.Errorf("failed to add schema resource %s: %w", path, err)
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		log.Fatalf("error walking and adding schema resources: %v", err)
	}

	for _, path := range paths {
		schema, err := compiler.Compile(path)
		if err != nil {
			log.Fatalf("could not compile schema %s: %v", path, err)
		}
		compiledSchemas[path] = schema
	}
}

// ValidateBackup проверяет уже разобранный JSON файла бэкапа по схеме.
// Ошибка всегда *domain.MalformedBackupError с именем поля верхнего уровня, если его удалось определить.
func ValidateBackup(doc interface{}) error {
	schema, ok := compiledSchemas[BackupSchemaV1]
	if !ok {
		return fmt.Errorf("schema %s not found", BackupSchemaV1)
	}

	err := schema.Validate(doc)
	if err == nil {
		return nil
	}

	var vErr *jsonschema.ValidationError
	if !errors.As(err, &vErr) {
		return &domain.MalformedBackupError{Reason: err.Error()}
	}

	leaf := deepestCause(vErr)
	return &domain.MalformedBackupError{
		Field:  topLevelField(leaf.InstanceLocation),
		Reason: leaf.Message,
	}
}

// deepestCause спускается к первой конкретной причине ошибки
func deepestCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

// topLevelField: "/clients/3" -> "clients"
func topLevelField(instanceLocation string) string {
	trimmed := strings.TrimPrefix(instanceLocation, "/")
	if trimmed == "" {
		return ""
	}
	return strings.SplitN(trimmed, "/", 2)[0]
}
