package github

// contentResponse - ответ GET /repos/{owner}/{repo}/contents/{path} для файла
type contentResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	// Content - base64 с переводами строк каждые 60 символов. Пустой для файлов больше 1 МБ.
	Content string `json:"content"`
}

type committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// putRequest - тело PUT /repos/{owner}/{repo}/contents/{path}
type putRequest struct {
	Message   string     `json:"message"`
	Content   string     `json:"content"`
	SHA       string     `json:"sha,omitempty"`
	Branch    string     `json:"branch,omitempty"`
	Committer *committer `json:"committer,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA  string `json:"sha"`
		Path string `json:"path"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type errorResponse struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}
