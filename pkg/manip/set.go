package manip

import (
	"sort"
	"sync"
)

// Set of strings, safe for concurrent use
type StringSet struct {
	data map[string]struct{}
	lock sync.Mutex
}

func NewStringSet(values []string) (result *StringSet) {
	result = &StringSet{data: map[string]struct{}{}}
	result.AddAll(values)

	return
}

func NewEmptyStringSet() *StringSet {
	return NewStringSet(nil)
}

// Returns true if the value was not in the set yet
func (s *StringSet) Add(value string) (added bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.data[value]; ok {
		return false
	}
	s.data[value] = struct{}{}
	return true
}

func (s *StringSet) AddAll(values []string) {
	for _, value := range values {
		s.Add(value)
	}
}

func (s *StringSet) Remove(value string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.data, value)
}

func (s *StringSet) Contains(value string) (result bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, result = s.data[value]
	return
}

func (s *StringSet) IsEmpty() bool {
	return s.Len() == 0
}

func (s *StringSet) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return len(s.data)
}

// Sorted values, nil when empty
func (s *StringSet) Values() (result []string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.data) == 0 {
		return nil
	}

	result = make([]string, 0, len(s.data))
	for key := range s.data {
		result = append(result, key)
	}
	sort.Strings(result)

	return
}
