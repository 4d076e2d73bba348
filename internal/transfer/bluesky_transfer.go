package transfer

import "encoding/json"

type UploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

type XRPCError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type CreateRecordRequest struct {
	Repo       string   `json:"repo"`
	Collection string   `json:"collection"`
	Record     FeedPost `json:"record"`
}

type CreateRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type FeedPost struct {
	Type      string      `json:"$type"`
	Text      string      `json:"text"`
	CreatedAt string      `json:"createdAt"`
	Embed     *ImageEmbed `json:"embed,omitempty"`
	Labels    *SelfLabels `json:"labels,omitempty"`
}

type ImageEmbed struct {
	Type   string       `json:"$type"`
	Images []EmbedImage `json:"images"`
}

type EmbedImage struct {
	Alt   string          `json:"alt"`
	Image json.RawMessage `json:"image"`
}

type SelfLabels struct {
	Type   string      `json:"$type"`
	Values []SelfLabel `json:"values"`
}

type SelfLabel struct {
	Val string `json:"val"`
}
