package dto

// UploadVersionRequest contains metadata submitted alongside replacement content.
type UploadVersionRequest struct {
	ChangeDescription string `form:"changeDescription" json:"changeDescription"`
}
