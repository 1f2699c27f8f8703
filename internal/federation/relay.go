// Package federation forwards media datagrams across servers for
// rooms that include remote participants, reusing the exact same wire
// format the local relay speaks.
package federation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/SweetLiberty92/Paracord-sub001/internal/logx"
	"github.com/SweetLiberty92/Paracord-sub001/internal/speaker"
	"github.com/SweetLiberty92/Paracord-sub001/internal/wire"
)

// NewLocalOriginID generates a fresh identifier for this server to
// present to remote servers when establishing federation links, for
// deployments that don't configure a stable origin name.
func NewLocalOriginID() string {
	return uuid.NewString()
}

// RemoteLink sends a verbatim datagram to one remote server.
type RemoteLink interface {
	SendDatagram(b []byte) error
}

// federatedRoom tracks which remote servers have participants in a
// locally-hosted room, and which users belong to each origin.
type federatedRoom struct {
	mu            sync.Mutex
	remoteServers map[string]map[int64]struct{}
}

func newFederatedRoom() *federatedRoom {
	return &federatedRoom{remoteServers: make(map[string]map[int64]struct{})}
}

// Relay owns every federated room's remote-server membership and the
// per-origin links used to reach them.
type Relay struct {
	mu    sync.RWMutex
	rooms map[string]*federatedRoom
	links map[string]RemoteLink // keyed by origin server id

	speakers *speaker.Detector
	lg       *logx.Logger
}

// New builds a Relay that feeds incoming federated audio levels into
// speakers.
func New(speakers *speaker.Detector) *Relay {
	return &Relay{
		rooms:    make(map[string]*federatedRoom),
		links:    make(map[string]RemoteLink),
		speakers: speakers,
		lg:       logx.New("federation"),
	}
}

// RegisterLink associates origin with the connection used to reach it.
func (r *Relay) RegisterLink(origin string, link RemoteLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[origin] = link
}

// AddRemoteParticipant records that userID at origin participates in
// roomID.
func (r *Relay) AddRemoteParticipant(roomID, origin string, userID int64) {
	r.mu.Lock()
	fr, ok := r.rooms[roomID]
	if !ok {
		fr = newFederatedRoom()
		r.rooms[roomID] = fr
	}
	r.mu.Unlock()

	fr.mu.Lock()
	defer fr.mu.Unlock()
	users, ok := fr.remoteServers[origin]
	if !ok {
		users = make(map[int64]struct{})
		fr.remoteServers[origin] = users
	}
	users[userID] = struct{}{}
}

// RemoveRemoteParticipant undoes AddRemoteParticipant, cleaning up the
// origin entry when it becomes empty and the room entry when no
// origins remain.
func (r *Relay) RemoveRemoteParticipant(roomID, origin string, userID int64) {
	r.mu.Lock()
	fr, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return
	}

	fr.mu.Lock()
	if users, ok := fr.remoteServers[origin]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(fr.remoteServers, origin)
		}
	}
	empty := len(fr.remoteServers) == 0
	fr.mu.Unlock()

	if empty {
		r.mu.Lock()
		delete(r.rooms, roomID)
		r.mu.Unlock()
	}
}

// IsFederated reports whether roomID has any remote participants.
func (r *Relay) IsFederated(roomID string) bool {
	r.mu.RLock()
	_, ok := r.rooms[roomID]
	r.mu.RUnlock()
	return ok
}

// RemoteServers lists the origins with participants in roomID.
func (r *Relay) RemoteServers(roomID string) []string {
	r.mu.RLock()
	fr, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make([]string, 0, len(fr.remoteServers))
	for origin := range fr.remoteServers {
		out = append(out, origin)
	}
	return out
}

// ForwardToFederation sends the verbatim datagram to every origin with
// participants in roomID.
func (r *Relay) ForwardToFederation(roomID string, datagram []byte) {
	for _, origin := range r.RemoteServers(roomID) {
		r.mu.RLock()
		link, ok := r.links[origin]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if err := link.SendDatagram(datagram); err != nil {
			r.lg.Printf("forward to origin %s failed: %v", origin, err)
		}
	}
}

// HandleIncomingPacket processes a datagram received from a remote
// server link: it parses the header, feeds the speaker detector (keyed
// by the header's SSRC used as the user id, with no room id), and returns
// the local room_id the packet belongs to, if any is currently known
// for that origin.
func (r *Relay) HandleIncomingPacket(origin string, datagram []byte) (roomID string, ok bool) {
	h, err := wire.Decode(datagram)
	if err != nil {
		r.lg.Printf("dropping unparseable federated datagram from %s: %v", origin, err)
		return "", false
	}
	r.speakers.ReportAudioLevel(int64(h.SSRC), h.AudioLevel)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, fr := range r.rooms {
		fr.mu.Lock()
		_, present := fr.remoteServers[origin]
		fr.mu.Unlock()
		if present {
			return id, true
		}
	}
	return "", false
}

// FederatedRoomIDs lists every room currently tracked as federated.
func (r *Relay) FederatedRoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
