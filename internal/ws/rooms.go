package ws

type clientMeta struct {
	peerID    string
	peerLabel string
	channelID string
}

func (s *Server) joinRoom(room string, c *client, meta clientMeta) {
	if room == "" {
		return
	}
	s.mu.Lock()
	m := s.rooms[room]
	if m == nil {
		m = make(map[*client]clientMeta)
		s.rooms[room] = m
	}
	m[c] = meta
	s.mu.Unlock()
	s.broadcastRoster(room)
}

func (s *Server) leaveRoom(room string, c *client) {
	if room == "" || c == nil {
		return
	}
	s.mu.Lock()
	if m := s.rooms[room]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(s.rooms, room)
		}
	}
	s.mu.Unlock()
	s.broadcastRoster(room)
}

// broadcast sends payload to everyone in room except the sender and other
// connections of the same peer.
func (s *Server) broadcast(room string, sender *client, senderPeerID string, payload any) {
	s.mu.RLock()
	var targets []*client
	for c, info := range s.rooms[room] {
		if c == sender {
			continue
		}
		if senderPeerID != "" && info.peerID == senderPeerID {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	for _, c := range targets {
		_ = c.writeJSON(payload)
	}
}

func (s *Server) broadcastRoster(room string) {
	s.mu.RLock()
	m := s.rooms[room]
	members := make([]map[string]any, 0, len(m))
	targets := make([]*client, 0, len(m))
	for c, info := range m {
		members = append(members, map[string]any{
			"peer_id":    info.peerID,
			"peer_label": info.peerLabel,
			"channel_id": info.channelID,
		})
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	payload := map[string]any{"type": "room_roster", "room_id": room, "members": members}
	for _, c := range targets {
		_ = c.writeJSON(payload)
	}
}
