package queue

// BlockedProducers returns the number of goroutines waiting for room.
func (m *MemQueue[T]) BlockedProducers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.notFull.len()
}

// BlockedConsumers returns the number of goroutines waiting for an item.
func (m *MemQueue[T]) BlockedConsumers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.notEmpty.len()
}
