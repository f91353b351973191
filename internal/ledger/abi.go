package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	METHOD_START_ROUND = "startRound"
	METHOD_FLIP        = "flip"
	METHOD_CASH_OUT    = "cashOut"
	METHOD_QUERY_ROUND = "queryRound"

	EVENT_ROUND_STARTED = "RoundStarted"
	EVENT_FLIP_RESOLVED = "FlipResolved"
	EVENT_CASHED_OUT    = "CashedOut"
)

// FlipZoneABI is the subset of the contract interface the gateway depends on.
const FlipZoneABI = `[
	{"type":"function","name":"startRound","stateMutability":"payable",
	 "inputs":[{"name":"commitmentHash","type":"bytes32"}],"outputs":[{"name":"sessionId","type":"uint256"}]},
	{"type":"function","name":"flip","stateMutability":"nonpayable",
	 "inputs":[{"name":"sessionId","type":"uint256"},{"name":"secret","type":"string"},{"name":"heads","type":"bool"}],"outputs":[]},
	{"type":"function","name":"cashOut","stateMutability":"nonpayable",
	 "inputs":[{"name":"sessionId","type":"uint256"},{"name":"secret","type":"string"}],"outputs":[]},
	{"type":"function","name":"queryRound","stateMutability":"view",
	 "inputs":[{"name":"sessionId","type":"uint256"}],
	 "outputs":[{"name":"player","type":"address"},{"name":"betAmount","type":"uint256"},{"name":"commitmentHash","type":"bytes32"},
	            {"name":"roundIndex","type":"uint256"},{"name":"streak","type":"uint256"},{"name":"active","type":"bool"}]},
	{"type":"event","name":"RoundStarted","anonymous":false,
	 "inputs":[{"name":"sessionId","type":"uint256","indexed":true},{"name":"player","type":"address","indexed":true}]},
	{"type":"event","name":"FlipResolved","anonymous":false,
	 "inputs":[{"name":"sessionId","type":"uint256","indexed":true},{"name":"heads","type":"bool","indexed":false},
	           {"name":"won","type":"bool","indexed":false},{"name":"streak","type":"uint256","indexed":false},
	           {"name":"serverSeed","type":"bytes32","indexed":false},{"name":"nonce","type":"uint256","indexed":false}]},
	{"type":"event","name":"CashedOut","anonymous":false,
	 "inputs":[{"name":"sessionId","type":"uint256","indexed":true},{"name":"amount","type":"uint256","indexed":false}]}
]`

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(FlipZoneABI))
	if err != nil {
		panic(err)
	}
	return parsed
}
