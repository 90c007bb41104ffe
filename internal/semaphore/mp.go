package semaphore

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/threadq"
)

func (m *Manager) sendRequest(executing *threadq.Thread, id ir.ObjectID, op ir.Operation, option ir.Option, timeout ir.Interval) error {
	mpci := m.cfg.MPCI
	if mpci == nil {
		return ir.StatusMPNotConfigured
	}
	p, status := mpci.GetPacket()
	if status != ir.StatusSuccessful {
		return status
	}
	defer mpci.FreePacket(p)

	p.Class = ir.PacketSemaphores
	p.Operation = op
	p.ID = id
	p.Option = option
	p.Timeout = timeout
	return mpci.SendRequest(executing, id.Node(), p).Err()
}

func (m *Manager) announce(op ir.Operation, id ir.ObjectID, name ir.Name) {
	mpci := m.cfg.MPCI
	p, status := mpci.GetPacket()
	if status != ir.StatusSuccessful {
		m.logger.Error("semaphore announce dropped", "id", id, "status", status)
		return
	}
	p.Class = ir.PacketSemaphores
	p.Operation = op
	p.ID = id
	p.Name = name
	mpci.SendProcess(mp.AllNodes, p)
}

// abandon runs on the requesting node when an obtain ends without a
// response: the owning node is told to extract the proxy still waiting on
// the requester's behalf.
func (m *Manager) abandon(executing *threadq.Thread, req *ir.Packet, status ir.Status) {
	if req.Operation != ir.OpSemaphoreObtainRequest || !req.Option.Blocking() {
		return
	}
	mpci := m.cfg.MPCI
	p, s := mpci.GetPacket()
	if s != ir.StatusSuccessful {
		m.logger.Error("extract proxy dropped", "thread", executing.ID, "status", s)
		return
	}
	p.Class = ir.PacketSemaphores
	p.Operation = ir.OpSemaphoreExtractProxy
	p.ID = executing.ID
	m.logger.Debug("extracting remote proxy", "semaphore", req.ID, "thread", executing.ID, "status", status)
	mpci.SendProcess(req.ID.Node(), p)
}

// processPacket runs on the receive server.
func (m *Manager) processPacket(p *ir.Packet) {
	mpci := m.cfg.MPCI
	switch p.Operation {
	case ir.OpSemaphoreAnnounceCreate:
		if m.cfg.GlobalTable != nil {
			if status := m.cfg.GlobalTable.Add(p.Name, p.ID); status != ir.StatusSuccessful {
				m.logger.Warn("global semaphore not recorded", "id", p.ID, "status", status)
			}
		}
		mpci.FreePacket(p)

	case ir.OpSemaphoreAnnounceDelete:
		if m.cfg.GlobalTable != nil {
			m.cfg.GlobalTable.Remove(p.ID)
		}
		mpci.FreePacket(p)

	case ir.OpSemaphoreExtractProxy:
		mpci.ExtractProxy(p.ID)
		mpci.FreePacket(p)

	case ir.OpSemaphoreObtainRequest:
		m.processObtain(p)

	case ir.OpSemaphoreReleaseRequest:
		e, status := m.local(p.ID)
		if status == ir.StatusSuccessful {
			proxy := mpci.Proxy(p.SourceTID, p.SourcePriority)
			status = e.ctrl.Surrender(proxy)
		}
		p.ReturnCode = status
		m.record(ir.Event{Kind: ir.EventRelease, Object: p.ID, Thread: p.SourceTID, Status: status})
		mpci.SendResponse(p)

	default:
		m.logger.Warn("semaphore packet dropped: unexpected operation", "operation", p.Operation)
		mpci.FreePacket(p)
	}
}

// processObtain seizes a local semaphore for a remote thread. A blocking
// obtain parks the thread's proxy; the response is sent when the proxy
// wakes. If the requester abandoned the obtain and the proxy got the
// semaphore anyway, it is released again.
func (m *Manager) processObtain(p *ir.Packet) {
	mpci := m.cfg.MPCI
	e, status := m.local(p.ID)
	if status != ir.StatusSuccessful {
		p.ReturnCode = status
		mpci.SendResponse(p)
		return
	}
	proxy := mpci.Proxy(p.SourceTID, p.SourcePriority)

	if !p.Option.Blocking() {
		p.ReturnCode = e.ctrl.Seize(proxy, false, 0)
		m.record(ir.Event{Kind: ir.EventObtain, Object: p.ID, Thread: p.SourceTID, Status: p.ReturnCode})
		mpci.SendResponse(p)
		return
	}

	id, timeout := p.ID, p.Timeout
	mpci.Block(proxy,
		func() ir.Status { return e.ctrl.Seize(proxy, true, timeout) },
		func(status ir.Status, abandoned bool) {
			m.record(ir.Event{Kind: ir.EventObtain, Object: id, Thread: p.SourceTID, Status: status})
			if abandoned {
				if status == ir.StatusSuccessful {
					e.ctrl.Surrender(proxy)
				}
				mpci.FreePacket(p)
				return
			}
			p.ReturnCode = status
			mpci.SendResponse(p)
		})
}
