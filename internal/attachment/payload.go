package attachment

type ListResponse struct {
	Attachments []Attachment `json:"attachments"`
}

type PresignResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}
