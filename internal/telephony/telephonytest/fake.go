// Package telephonytest provides in-memory rooms and a scripted speech
// pipeline for exercising call flows without a voice platform.
package telephonytest

import (
	"context"
	"strings"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/telephony"
)

const AgentPrefix = "agent_"

// EmployeeIdentity is the participant identity the fake assigns to a dialed number.
func EmployeeIdentity(phoneNumber string) string {
	return "sip_" + phoneNumber
}

type Rooms struct {
	mu        sync.Mutex
	members   map[string]map[string]bool
	destroyed map[string]int
	calls     []string

	CreateRoomErr error
	AddAgentErr   error
	DialErr       error
	DialPanic     any
	RemoveErr     error
	// MoveErrs is consumed one entry per MoveParticipant call.
	MoveErrs []error
	// LostMoveReplies is consumed one entry per applied move; the move takes
	// effect but the entry is returned as if the reply never arrived.
	LostMoveReplies []error
	// EmployeeLeavesOnMerge drops dialed participants from the destination
	// room as soon as someone is moved into it.
	EmployeeLeavesOnMerge bool
	OnDial                func(room telephony.Room, participant telephony.Participant)
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string]map[string]bool),
		destroyed: make(map[string]int),
	}
}

// AddRoom seeds a room that already exists on the platform.
func (r *Rooms) AddRoom(name string, identities ...string) telephony.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make(map[string]bool, len(identities))
	for _, identity := range identities {
		members[identity] = true
	}

	r.members[name] = members

	return telephony.Room{Name: name}
}

func (r *Rooms) CreateRoom(_ context.Context, name string) (telephony.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "create:"+name)
	if r.CreateRoomErr != nil {
		return telephony.Room{}, r.CreateRoomErr
	}

	r.members[name] = make(map[string]bool)

	return telephony.Room{Name: name}, nil
}

func (r *Rooms) DestroyRoom(_ context.Context, room telephony.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "destroy:"+room.Name)
	r.destroyed[room.Name]++
	delete(r.members, room.Name)

	return nil
}

func (r *Rooms) AddAgent(_ context.Context, room telephony.Room) (telephony.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "agent:"+room.Name)
	if r.AddAgentErr != nil {
		return telephony.Participant{}, r.AddAgentErr
	}

	identity := AgentPrefix + room.Name
	r.join(room.Name, identity)

	return telephony.Participant{Identity: identity}, nil
}

func (r *Rooms) DialParticipant(_ context.Context, room telephony.Room, phoneNumber string) (telephony.Participant, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "dial:"+room.Name+":"+phoneNumber)

	if r.DialPanic != nil {
		r.mu.Unlock()
		panic(r.DialPanic)
	}

	if r.DialErr != nil {
		r.mu.Unlock()
		return telephony.Participant{}, r.DialErr
	}

	participant := telephony.Participant{Identity: EmployeeIdentity(phoneNumber)}
	r.join(room.Name, participant.Identity)
	onDial := r.OnDial
	r.mu.Unlock()

	if onDial != nil {
		onDial(room, participant)
	}

	return participant, nil
}

func (r *Rooms) MoveParticipant(_ context.Context, participant telephony.Participant, from, to telephony.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "move:"+participant.Identity+":"+from.Name+":"+to.Name)

	if len(r.MoveErrs) > 0 {
		err := r.MoveErrs[0]
		r.MoveErrs = r.MoveErrs[1:]

		if err != nil {
			return err
		}
	}

	if !r.members[from.Name][participant.Identity] {
		return telephony.ErrParticipantGone
	}

	delete(r.members[from.Name], participant.Identity)
	r.join(to.Name, participant.Identity)

	if r.EmployeeLeavesOnMerge {
		for identity := range r.members[to.Name] {
			if strings.HasPrefix(identity, "sip_") {
				delete(r.members[to.Name], identity)
			}
		}
	}

	if len(r.LostMoveReplies) > 0 {
		err := r.LostMoveReplies[0]
		r.LostMoveReplies = r.LostMoveReplies[1:]

		return err
	}

	return nil
}

func (r *Rooms) RemoveParticipant(_ context.Context, room telephony.Room, participant telephony.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, "remove:"+room.Name+":"+participant.Identity)
	if r.RemoveErr != nil {
		return r.RemoveErr
	}

	delete(r.members[room.Name], participant.Identity)

	return nil
}

func (r *Rooms) HasParticipant(_ context.Context, room telephony.Room, participant telephony.Participant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.members[room.Name][participant.Identity], nil
}

func (r *Rooms) join(room, identity string) {
	if r.members[room] == nil {
		r.members[room] = make(map[string]bool)
	}

	r.members[room][identity] = true
}

func (r *Rooms) Destroyed(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.destroyed[room]
}

func (r *Rooms) Has(room, identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.members[room][identity]
}

func (r *Rooms) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

// Turn is one scripted reply from a participant.
type Turn struct {
	Utterance telephony.Utterance
	Err       error
}

func Says(text string) Turn {
	return Turn{Utterance: telephony.Utterance{Text: text}}
}

func Presses(digits string) Turn {
	return Turn{Utterance: telephony.Utterance{Digits: digits}}
}

func Silence() Turn {
	return Turn{}
}

func HangsUp() Turn {
	return Turn{Err: telephony.ErrParticipantGone}
}

type Line struct {
	Room string
	Text string
}

// Speech replays scripted turns per participant. Once a participant's script
// is exhausted Listen blocks until its context ends.
type Speech struct {
	mu      sync.Mutex
	scripts map[string][]Turn
	said    []Line

	SayErr error
}

func NewSpeech() *Speech {
	return &Speech{scripts: make(map[string][]Turn)}
}

func (s *Speech) Script(identity string, turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scripts[identity] = append(s.scripts[identity], turns...)
}

func (s *Speech) Say(_ context.Context, room telephony.Room, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.said = append(s.said, Line{Room: room.Name, Text: text})

	return s.SayErr
}

func (s *Speech) Listen(ctx context.Context, _ telephony.Room, from telephony.Participant) (telephony.Utterance, error) {
	s.mu.Lock()
	turns := s.scripts[from.Identity]

	if len(turns) > 0 {
		s.scripts[from.Identity] = turns[1:]
		s.mu.Unlock()

		return turns[0].Utterance, turns[0].Err
	}
	s.mu.Unlock()

	<-ctx.Done()

	return telephony.Utterance{}, ctx.Err()
}

func (s *Speech) Said() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Line(nil), s.said...)
}

func (s *Speech) SaidIn(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string

	for _, line := range s.said {
		if line.Room == room {
			texts = append(texts, line.Text)
		}
	}

	return texts
}
