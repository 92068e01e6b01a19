package spool

// Snapshot is an ordered mapping of job id to record for one device.
//
// Iteration follows the order jobs were added, which for a snapshot read
// from a provider is the spooler's enumeration order. A zero Snapshot is
// empty and ready to use.
type Snapshot struct {
	order []int
	jobs  map[int]JobRecord
}

// NewSnapshot builds a snapshot from records. Later duplicates of an id
// replace the earlier record but keep its position.
func NewSnapshot(records []JobRecord) Snapshot {
	s := Snapshot{
		order: make([]int, 0, len(records)),
		jobs:  make(map[int]JobRecord, len(records)),
	}
	for _, r := range records {
		if _, ok := s.jobs[r.JobID]; !ok {
			s.order = append(s.order, r.JobID)
		}
		s.jobs[r.JobID] = r
	}
	return s
}

// Len returns the number of jobs.
func (s Snapshot) Len() int { return len(s.order) }

// Get returns the record for id.
func (s Snapshot) Get(id int) (JobRecord, bool) {
	r, ok := s.jobs[id]
	return r, ok
}

// Has reports whether id is present.
func (s Snapshot) Has(id int) bool {
	_, ok := s.jobs[id]
	return ok
}

// IDs returns job ids in snapshot order.
func (s Snapshot) IDs() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// Records returns job records in snapshot order.
func (s Snapshot) Records() []JobRecord {
	out := make([]JobRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out
}

// Filter returns a snapshot holding only the given ids, in s order.
func (s Snapshot) Filter(ids map[int]struct{}) Snapshot {
	out := Snapshot{jobs: make(map[int]JobRecord)}
	for _, id := range s.order {
		if _, ok := ids[id]; ok {
			out.order = append(out.order, id)
			out.jobs[id] = s.jobs[id]
		}
	}
	return out
}
