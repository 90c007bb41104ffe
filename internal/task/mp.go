package task

import (
	"github.com/roach88/synccore/internal/ir"
	"github.com/roach88/synccore/internal/mp"
	"github.com/roach88/synccore/internal/threadq"
)

func (m *Manager) registerMP(mpci *mp.MPCI) {
	mpci.Register(ir.PacketTasks, mp.Handlers{Process: m.processTaskPacket})
	mpci.Register(ir.PacketSignal, mp.Handlers{Process: m.processSignalPacket})
}

// sendTask forwards a task directive to the node that owns id. read, if
// set, receives the response packet before it is freed.
func (m *Manager) sendTask(executing *threadq.Thread, id ir.ObjectID, op ir.Operation, priority ir.Priority, read func(*ir.Packet)) error {
	mpci := m.cfg.MPCI
	if mpci == nil {
		return ir.StatusMPNotConfigured
	}
	if executing == nil {
		return ir.StatusIllegalOnRemoteObject
	}
	p, status := mpci.GetPacket()
	if status != ir.StatusSuccessful {
		return status
	}
	defer mpci.FreePacket(p)

	p.Class = ir.PacketTasks
	p.Operation = op
	p.ID = id
	p.Priority = priority

	status = mpci.SendRequest(executing, id.Node(), p)
	if status == ir.StatusSuccessful && read != nil {
		read(p)
	}
	return status.Err()
}

func (m *Manager) sendSignal(executing *threadq.Thread, id ir.ObjectID, set ir.SignalSet) error {
	mpci := m.cfg.MPCI
	if mpci == nil {
		return ir.StatusMPNotConfigured
	}
	if executing == nil {
		return ir.StatusIllegalOnRemoteObject
	}
	p, status := mpci.GetPacket()
	if status != ir.StatusSuccessful {
		return status
	}
	defer mpci.FreePacket(p)

	p.Class = ir.PacketSignal
	p.Operation = ir.OpSignalSendRequest
	p.ID = id
	p.SignalSet = set
	return mpci.SendRequest(executing, id.Node(), p).Err()
}

// announce broadcasts the creation or deletion of a global task.
func (m *Manager) announce(op ir.Operation, id ir.ObjectID, name ir.Name) {
	mpci := m.cfg.MPCI
	p, status := mpci.GetPacket()
	if status != ir.StatusSuccessful {
		m.logger.Error("task announce dropped", "id", id, "status", status)
		return
	}
	p.Class = ir.PacketTasks
	p.Operation = op
	p.ID = id
	p.Name = name
	mpci.SendProcess(mp.AllNodes, p)
}

// processTaskPacket runs on the receive server.
func (m *Manager) processTaskPacket(p *ir.Packet) {
	mpci := m.cfg.MPCI
	switch p.Operation {
	case ir.OpTaskAnnounceCreate:
		if m.cfg.GlobalTable != nil {
			if status := m.cfg.GlobalTable.Add(p.Name, p.ID); status != ir.StatusSuccessful {
				m.logger.Warn("global task not recorded", "id", p.ID, "status", status)
			}
		}
		mpci.FreePacket(p)

	case ir.OpTaskAnnounceDelete:
		if m.cfg.GlobalTable != nil {
			m.cfg.GlobalTable.Remove(p.ID)
		}
		mpci.DropProxy(p.ID)
		mpci.FreePacket(p)

	case ir.OpTaskSuspendRequest:
		p.ReturnCode = m.suspend(p.ID)
		m.record(ir.Event{Kind: ir.EventSuspend, Object: p.ID, Thread: p.SourceTID, Status: p.ReturnCode})
		mpci.SendResponse(p)

	case ir.OpTaskResumeRequest:
		p.ReturnCode = m.resume(p.ID)
		m.record(ir.Event{Kind: ir.EventResume, Object: p.ID, Thread: p.SourceTID, Status: p.ReturnCode})
		mpci.SendResponse(p)

	case ir.OpTaskSetPriorityRequest:
		requested := p.Priority
		p.Priority, p.ReturnCode = m.setPriority(p.ID, requested)
		if requested != ir.CurrentPriority {
			m.record(ir.Event{Kind: ir.EventSetPriority, Object: p.ID, Thread: p.SourceTID, Status: p.ReturnCode,
				Detail: map[string]any{"old": int64(p.Priority), "new": int64(requested)}})
		}
		mpci.SendResponse(p)

	default:
		m.logger.Warn("task packet dropped: unexpected operation", "operation", p.Operation)
		mpci.FreePacket(p)
	}
}

func (m *Manager) processSignalPacket(p *ir.Packet) {
	mpci := m.cfg.MPCI
	if p.Operation != ir.OpSignalSendRequest {
		m.logger.Warn("signal packet dropped: unexpected operation", "operation", p.Operation)
		mpci.FreePacket(p)
		return
	}
	if p.SignalSet == 0 {
		p.ReturnCode = ir.StatusInvalidNumber
	} else {
		p.ReturnCode = m.signalSend(p.ID, p.SignalSet)
	}
	m.record(ir.Event{Kind: ir.EventSignal, Object: p.ID, Thread: p.SourceTID, Status: p.ReturnCode,
		Detail: map[string]any{"set": int64(p.SignalSet)}})
	mpci.SendResponse(p)
}
