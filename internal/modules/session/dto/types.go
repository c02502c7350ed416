package dto

type BlobOutput struct {
	SessionID string
	Blob      string
}

type SessionOutput struct {
	ID    string
	Role  string
	State string
}
