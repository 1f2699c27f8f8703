// Package e2ee implements the per-room sender-key distributor: senders
// announce epoch-scoped encrypted keys for each recipient, late
// joiners catch up on what was announced before they arrived, and
// membership changes trigger rotation notices so the relay's
// zero-knowledge boundary never sees plaintext keys.
package e2ee

import "sync"

// EncryptedKey is one recipient's opaque, pre-encrypted copy of a
// sender's epoch key. The distributor never inspects Ciphertext.
type EncryptedKey struct {
	RecipientID int64
	Ciphertext  []byte
}

// storedRecord is the most recent announcement from one sender.
type storedRecord struct {
	epoch         uint8
	encryptedKeys []EncryptedKey
}

// Delivery is one KeyDeliver{sender, epoch, ciphertext} addressed to a
// single recipient.
type Delivery struct {
	RecipientID int64
	SenderID    int64
	Epoch       uint8
	Ciphertext  []byte
}

// RotationKind distinguishes why senders should rotate their epoch.
type RotationKind int

const (
	ParticipantJoined RotationKind = iota
	ParticipantLeft
)

// RotationNotice tells existing senders to start a new epoch.
type RotationNotice struct {
	Kind   RotationKind
	UserID int64
}

// Distributor owns one room's sender-key records.
type Distributor struct {
	mu      sync.Mutex
	RoomID  string
	senders map[int64]*storedRecord
}

// New returns an empty Distributor for roomID.
func New(roomID string) *Distributor {
	return &Distributor{RoomID: roomID, senders: make(map[int64]*storedRecord)}
}

// HandleKeyAnnounce stores senderID's announcement (replacing any
// prior one for that sender, per spec.md §9 "epoch is strictly
// monotonic per sender") and returns one Delivery per recipient to
// forward immediately.
func (d *Distributor) HandleKeyAnnounce(senderID int64, epoch uint8, encryptedKeys []EncryptedKey) []Delivery {
	d.mu.Lock()
	d.senders[senderID] = &storedRecord{epoch: epoch, encryptedKeys: encryptedKeys}
	d.mu.Unlock()

	out := make([]Delivery, 0, len(encryptedKeys))
	for _, ek := range encryptedKeys {
		out = append(out, Delivery{
			RecipientID: ek.RecipientID,
			SenderID:    senderID,
			Epoch:       epoch,
			Ciphertext:  ek.Ciphertext,
		})
	}
	return out
}

// HandleParticipantJoin finds every stored record addressed to
// newUserID and returns the catch-up deliveries, plus a
// ParticipantJoined rotation notice for existing senders to act on.
func (d *Distributor) HandleParticipantJoin(newUserID int64) ([]Delivery, RotationNotice) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Delivery
	for senderID, rec := range d.senders {
		for _, ek := range rec.encryptedKeys {
			if ek.RecipientID == newUserID {
				out = append(out, Delivery{
					RecipientID: newUserID,
					SenderID:    senderID,
					Epoch:       rec.epoch,
					Ciphertext:  ek.Ciphertext,
				})
			}
		}
	}
	return out, RotationNotice{Kind: ParticipantJoined, UserID: newUserID}
}

// HandleParticipantLeave drops the leaving user's own stored record
// (if they had announced one as a sender) and returns a
// ParticipantLeft rotation notice.
func (d *Distributor) HandleParticipantLeave(userID int64) RotationNotice {
	d.mu.Lock()
	delete(d.senders, userID)
	d.mu.Unlock()
	return RotationNotice{Kind: ParticipantLeft, UserID: userID}
}

// CurrentEpoch returns senderID's most recently announced epoch, and
// whether any announcement exists.
func (d *Distributor) CurrentEpoch(senderID int64) (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.senders[senderID]
	if !ok {
		return 0, false
	}
	return rec.epoch, true
}

// SenderCount returns the number of senders with a stored record.
func (d *Distributor) SenderCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.senders)
}
