package cache

import "time"

// Start launches the TTL sweep and memory pressure loops.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.sweepLoop()
	go m.pressureLoop()
}

// Stop terminates the background loops and waits for them.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

// sweepExpired removes entries whose last access is older than the TTL.
func (m *Manager) sweepExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.admission.Lock()
	defer m.admission.Unlock()

	type expired struct {
		key  Key
		size int64
	}

	m.mu.RLock()
	var victims []expired
	for k, e := range m.entries {
		if e.accessedAt().Before(cutoff) {
			victims = append(victims, expired{key: k, size: e.memorySize})
		}
	}
	m.mu.RUnlock()

	for _, v := range victims {
		m.removeLocked(v.key, v.size)
		m.logger.Info("embedding table expired", "key", v.key.String(), "bytes", v.size)
	}
}

func (m *Manager) pressureLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pressureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkPressure()
		}
	}
}

func (m *Manager) checkPressure() {
	m.admission.Lock()
	usage := m.memoryUsage
	m.admission.Unlock()

	if m.maxMemory <= 0 {
		return
	}
	ratio := float64(usage) / float64(m.maxMemory)

	switch {
	case ratio >= 0.9:
		m.logger.Warn("embedding cache memory critical",
			"usage_bytes", usage, "max_bytes", m.maxMemory, "ratio", ratio)
	case ratio >= highWatermark:
		m.logger.Info("embedding cache memory high",
			"usage_bytes", usage, "max_bytes", m.maxMemory, "ratio", ratio)
	}
}
