package timesync

import "time"

// Status is a point-in-time snapshot for logs and health surfaces.
type Status struct {
	Synced           bool
	LastSync         time.Time
	OffsetSeconds    float64
	Timezone         string
	NetworkAvailable bool
	SyncNeeded       bool
	DSTWindow        bool
}

func (s *Service) Status() Status {
	needed := s.IsSyncNeeded()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Synced:           s.synced,
		LastSync:         s.lastSync,
		OffsetSeconds:    s.offset.Seconds(),
		Timezone:         s.loc.String(),
		NetworkAvailable: !s.probed || s.networkOK,
		SyncNeeded:       needed,
		DSTWindow:        inDSTWindow(s.now().In(s.loc)),
	}
}
