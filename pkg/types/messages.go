package types

// Client -> Server
// join-battle:
//   roomKey: string
//   playerName: string
//   playerToken?: string   // rebinds an existing player to this connection
//
// code-change:
//   roomKey: string
//   playerId: string
//   code: string
//
// run-tests:
//   roomKey: string
//   playerId: string
//   code: string
//
// start-battle:
//   roomKey: string

// Server -> Client
// player-assigned:     roomKey, playerId, playerToken (joiner only)
// battle-state-update: version, state: RoomSnapshot
// code-update:         roomKey, playerId, code (everyone but the editor)
// test-result:         roomKey, playerId, passed, score (submitter only, one per case)
// battle-ended:        roomKey, winner
// error:               event, roomKey?, error (requester only)

const (
	EvtJoinBattle  = "join-battle"
	EvtCodeChange  = "code-change"
	EvtRunTests    = "run-tests"
	EvtStartBattle = "start-battle"

	EvtPlayerAssigned    = "player-assigned"
	EvtBattleStateUpdate = "battle-state-update"
	EvtCodeUpdate        = "code-update"
	EvtTestResult        = "test-result"
	EvtBattleEnded       = "battle-ended"
	EvtError             = "error"
)
