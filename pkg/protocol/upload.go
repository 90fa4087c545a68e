package protocol

const (
	AudioPath          = "/audio"
	UploadPath         = "/upload_reference_audio"
	ReferenceAudioPath = "/reference_audio"
	// UploadFormField is the multipart field carrying the reference audio file.
	UploadFormField = "file"

	UploadStatusSuccess = "success"
	UploadStatusError   = "error"
)

// UploadResponse is the JSON body of the upload endpoint.
type UploadResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
