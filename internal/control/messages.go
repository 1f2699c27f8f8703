package control

// AuthPayload is the first message a client must send on a new
// connection's control stream.
type AuthPayload struct {
	Token string `json:"token"`
}

// PongPayload acknowledges a successful Auth.
type PongPayload struct{}

// KeyAnnouncePayload carries a sender's epoch-scoped encrypted keys for
// each recipient. Ciphertext values are opaque to the codec and relay.
type KeyAnnouncePayload struct {
	Epoch         uint8               `json:"epoch"`
	EncryptedKeys []EncryptedKeyEntry `json:"encrypted_keys"`
}

// EncryptedKeyEntry is one recipient's copy of a sender's epoch key.
type EncryptedKeyEntry struct {
	RecipientUserID int64  `json:"recipient_user_id"`
	Ciphertext      []byte `json:"ciphertext"`
}

// KeyDeliverPayload is forwarded to a single recipient in response to
// a KeyAnnounce or a catch-up delivery on join.
type KeyDeliverPayload struct {
	SenderUserID int64  `json:"sender_user_id"`
	Epoch        uint8  `json:"epoch"`
	Ciphertext   []byte `json:"ciphertext"`
}

// SubscribePayload requests (or changes the simulcast layer of) a
// subscription to another participant's media.
type SubscribePayload struct {
	UserID         int64 `json:"user_id"`
	SimulcastLayer *int  `json:"simulcast_layer,omitempty"`
}

type FileTransferInitPayload struct {
	TransferID   string `json:"transfer_id"`
	Filename     string `json:"filename"`
	SizeBytes    int64  `json:"size_bytes"`
	RecipientID  int64  `json:"recipient_user_id"`
}

type FileTransferAcceptPayload struct {
	TransferID string `json:"transfer_id"`
}

type FileTransferRejectPayload struct {
	TransferID string `json:"transfer_id"`
	Reason     string `json:"reason"`
}

type FileTransferDonePayload struct {
	TransferID   string `json:"transfer_id"`
	AttachmentID string `json:"attachment_id,omitempty"`
	URL          string `json:"url,omitempty"`
}

type FileTransferErrorPayload struct {
	Message string `json:"message"`
}

type FileDownloadRequestPayload struct {
	AttachmentID string `json:"attachment_id"`
	AuthToken    string `json:"auth_token"`
	RangeStart   *int64 `json:"range_start,omitempty"`
	RangeEnd     *int64 `json:"range_end,omitempty"`
}

type FileDownloadAcceptPayload struct {
	Size int64 `json:"size"`
}
