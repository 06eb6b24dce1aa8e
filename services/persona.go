package services

import (
	"crypto/sha1"
	"encoding/binary"
)

// Persona is the stable identity the interviewer presents during one
// session.
type Persona struct {
	Name  string
	Style string
}

// Stock interviewer personas.
var interviewerPersonas = []Persona{
	{Name: "Priya", Style: "methodical and encouraging, asks for reasoning before offering hints"},
	{Name: "Marcus", Style: "direct and pragmatic, pushes hard on tradeoffs and failure modes"},
	{Name: "Elena", Style: "curious and conversational, explores design alternatives with the candidate"},
	{Name: "Tomas", Style: "calm and thorough, insists on complexity analysis for every approach"},
	{Name: "Aisha", Style: "fast-paced and challenging, probes edge cases relentlessly"},
	{Name: "Kenji", Style: "quiet and precise, favors incremental problem decomposition"},
}

// PickDeterministicPersona returns the persona for a session by hashing
// its id, so reconnects and resumed sessions always face the same
// interviewer.
func PickDeterministicPersona(sessionID string) Persona {
	h := sha1.New()
	h.Write([]byte(sessionID))
	sum := h.Sum(nil)
	idx := binary.BigEndian.Uint16(sum) % uint16(len(interviewerPersonas))
	return interviewerPersonas[idx]
}
