package facebook

// postsResponse represents the Graph API page-posts payload.
type postsResponse struct {
	Data   []post    `json:"data"`
	Paging *paging   `json:"paging"`
	Error  *apiError `json:"error"`
}

type post struct {
	ID           string       `json:"id"`
	Message      string       `json:"message"`
	PermalinkURL string       `json:"permalink_url"`
	CreatedTime  string       `json:"created_time"`
	FullPicture  string       `json:"full_picture"`
	Attachments  *attachments `json:"attachments"`
}

type attachments struct {
	Data []attachment `json:"data"`
}

type attachment struct {
	MediaType string `json:"media_type"`
	URL       string `json:"url"`
}

type paging struct {
	Next string `json:"next"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	TraceID string `json:"fbtrace_id"`
}
