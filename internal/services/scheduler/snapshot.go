package scheduler

// Snapshot returns overall health plus per-job next/prev run metadata.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running: s.stopCh != nil,
	}
	if s.loc != nil {
		snap.Timezone = s.loc.String()
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	for _, d := range s.defs {
		snap.Jobs = append(snap.Jobs, s.infoLocked(d))
	}
	return snap
}
