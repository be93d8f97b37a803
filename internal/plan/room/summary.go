package room

import "github.com/mrskaggs/cline-ai-sub002/internal/protocol"

// Summary converts the report into its wire form.
func (r TickReport) Summary() protocol.TickSummary {
	out := protocol.TickSummary{
		Type:            protocol.TypeTickSummary,
		ProtocolVersion: protocol.Version,
		Tick:            r.Tick,
		Rooms:           make([]protocol.RoomTick, 0, len(r.Rooms)),
	}
	for _, rr := range r.Rooms {
		rt := protocol.RoomTick{
			Room:         rr.Room,
			Level:        rr.Level,
			Replanned:    rr.Replanned,
			Reason:       rr.Reason,
			Buildings:    rr.BuildingsUpdated,
			Roads:        rr.RoadsUpdated,
			Scanned:      rr.Scanned,
			Requested:    rr.Requested,
			RoadRequests: rr.RoadRequests,
			Rebuilds:     rr.Rebuilds,
		}
		if rr.Err != nil {
			rt.Code = protocol.ErrInternal
			rt.Message = rr.Err.Error()
		} else {
			rt.Status = rr.Status.String()
		}
		out.Rooms = append(out.Rooms, rt)
	}
	return out
}

func (e Event) Message() protocol.EventMsg {
	return protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            e.Tick,
		Room:            e.Room,
		Kind:            e.Kind,
		Count:           e.Count,
		Code:            e.Code,
		Detail:          e.Detail,
	}
}

// Fanout delivers every event to each sink in order.
type Fanout []EventSink

func (f Fanout) Emit(ev Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ev)
		}
	}
}
