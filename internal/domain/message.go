package domain

// Template is the raw campaign content before personalization. Fields may
// contain spintax blocks and [token] placeholders.
type Template struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Content is the personalized output for one recipient: spintax resolved,
// tokens substituted, nothing injected yet.
type Content struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// EmailMessage is the fully-resolved message ready for transport. By the time
// a message reaches this struct, personalization, tracking injection, MIME
// assembly, and header generation (DKIM included) are complete. Data holds
// the exact RFC 5322 bytes to transmit; Headers is kept alongside for
// inspection and must agree with Data.
type EmailMessage struct {
	SendID        string            `json:"send_id"`
	TrackingToken string            `json:"tracking_token"`
	Email         string            `json:"email"`
	ReturnPath    string            `json:"return_path"`
	Headers       map[string]string `json:"headers,omitempty"`
	Data          []byte            `json:"-"`
}
