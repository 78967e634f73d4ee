package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/safwentrabelsi/staking-aggregator/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relayBody = `{
	"family": "relay",
	"relay": {
		"chain": "polkadot",
		"currentEra": "1200",
		"totalIssuance": "1000",
		"totalEraStake": "500",
		"minNominatorBond": "10",
		"maxNominations": "16",
		"validators": [
			{"address": "v1", "total": "300", "own": "100", "others": [{"who": "alice", "value": "200"}]},
			{"address": "v2", "total": "200", "own": "200", "others": []}
		],
		"accounts": {
			"alice": {"unlocking": [{"value": "5", "era": "1228"}], "targets": ["v1", "v2"]},
			"bob": {"unlocking": [{"value": "-1", "era": "1230"}], "targets": []}
		},
		"identities": {"v1": "Validator One"}
	}
}`

func TestRawEnvelope_ParseRelay(t *testing.T) {
	var env RawEnvelope
	require.NoError(t, json.Unmarshal([]byte(relayBody), &env))

	snap, err := env.Parse()
	require.NoError(t, err)
	relay, ok := snap.(*RelaySnapshot)
	require.True(t, ok)

	assert.Equal(t, "polkadot", relay.Chain())
	assert.Equal(t, types.FamilyRelay, relay.Family())
	assert.Equal(t, uint32(1200), relay.CurrentEra)
	assert.Equal(t, "500", relay.TotalEraStake.String())
	assert.Nil(t, relay.MinimumActiveStake)
	assert.Equal(t, uint32(16), relay.MaxNominations)

	v1 := relay.Validator("v1")
	require.NotNil(t, v1)
	assert.Equal(t, "200", v1.ExposureOf("alice").String())
	assert.Nil(t, v1.ExposureOf("bob"))
	assert.Nil(t, relay.Validator("v3"))

	require.Contains(t, relay.Accounts, "alice")
	assert.Equal(t, uint32(1228), relay.Accounts["alice"].Unlocking[0].Era)

	t.Run("malformed account is isolated", func(t *testing.T) {
		assert.NotContains(t, relay.Accounts, "bob")
		err := relay.Malformed.Err("bob")
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrMalformedSnapshot))
		assert.NoError(t, relay.Malformed.Err("alice"))
	})
}

func TestRawEnvelope_ParseChainLevelFailure(t *testing.T) {
	tests := []struct {
		name string
		env  RawEnvelope
	}{
		{"missing body", RawEnvelope{Family: types.FamilyParachain}},
		{"unknown family", RawEnvelope{Family: "pos"}},
		{"bad era", RawEnvelope{Family: types.FamilyRelay, Relay: &RawRelaySnapshot{Chain: "kusama", CurrentEra: "x", TotalIssuance: "1", TotalEraStake: "1"}}},
		{"missing issuance", RawEnvelope{Family: types.FamilyRelay, Relay: &RawRelaySnapshot{Chain: "kusama", CurrentEra: "1", TotalEraStake: "1"}}},
		{"missing dapp total stake", RawEnvelope{Family: types.FamilyContract, Dapp: &RawDappSnapshot{
			Chain: "astar", CurrentEra: "500", TotalIssuance: "1", MinStakingAmount: "1",
		}}},
		{"bad collator bond", RawEnvelope{Family: types.FamilyParachain, Parachain: &RawParachainSnapshot{
			Chain: "moonbeam", Round: "1", TotalIssuance: "1", TotalStaked: "1", MinDelegation: "1",
			Collators: []RawCollator{{Address: "c1", Bond: "1.5", TotalCounted: "2"}},
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := tc.env.Parse()
			assert.Nil(t, snap)
			assert.True(t, errors.Is(err, types.ErrMalformedSnapshot))
		})
	}
}

func TestRawParachainSnapshot_Parse(t *testing.T) {
	raw := &RawParachainSnapshot{
		Chain:                         "moonbeam",
		Round:                         "90",
		TotalIssuance:                 "1000",
		TotalStaked:                   "400",
		MinDelegation:                 "5",
		MaxTopDelegationsPerCandidate: "300",
		CollatorCommission:            "200000000",
		Collators: []RawCollator{
			{Address: "c1", Bond: "100", TotalCounted: "300", DelegationCount: "2", LowestTopDelegation: "50", TopCapacity: "Full"},
			{Address: "c2", Bond: "100", TotalCounted: "100", Status: "Idle"},
		},
		Delegators: map[string]*RawDelegator{
			"alice": {
				Delegations: []RawDelegation{{Owner: "c1", Amount: "60"}},
				Requests:    []RawScheduledRequest{{Collator: "c1", WhenExecutable: "100", Amount: "10", Action: "decrease"}},
			},
			"bob": {
				Delegations: []RawDelegation{{Owner: "c2", Amount: "30"}},
				Requests:    []RawScheduledRequest{{Collator: "c2", WhenExecutable: "95", Action: "revoke"}},
			},
			"eve": {
				Requests: []RawScheduledRequest{{Collator: "c2", WhenExecutable: "95", Amount: "1", Action: "cancel"}},
			},
		},
	}

	snap, err := raw.Parse()
	require.NoError(t, err)
	assert.Equal(t, uint32(90), snap.Round)
	assert.True(t, snap.Collator("c1").TopCapacityFull)
	assert.Equal(t, CollatorActive, snap.Collator("c1").Status)
	assert.Equal(t, CollatorIdle, snap.Collator("c2").Status)
	assert.Equal(t, "50", snap.Collator("c1").LowestTopDelegation.String())
	assert.Equal(t, ActionDecrease, snap.Delegators["alice"].Requests[0].Action)
	assert.Equal(t, "c1", snap.Delegators["alice"].Delegations[0].Collator)

	revoke := snap.Delegators["bob"].Requests[0]
	assert.Equal(t, ActionRevoke, revoke.Action)
	assert.Nil(t, revoke.Amount)

	assert.NotContains(t, snap.Delegators, "eve")
	assert.True(t, errors.Is(snap.Malformed.Err("eve"), types.ErrMalformedSnapshot))
}

func TestRawDappSnapshot_Parse(t *testing.T) {
	raw := &RawDappSnapshot{
		Chain:            "astar",
		CurrentEra:       "500",
		TotalIssuance:    "8000000",
		TotalStaked:      "2000000",
		MinStakingAmount: "500",
		Dapps:            []RawDapp{{Address: "0xdapp", Name: "Dapp", TotalStake: "9000", NumberOfStakers: "12"}},
		Stakers: map[string]*RawDappStaker{
			"alice": {
				Stakes:    []RawContractStake{{Contract: "0xdapp", History: []RawEraStake{{Era: "480", Staked: "100"}, {Era: "490", Staked: "700"}}}},
				Unlocking: []RawDappUnlockChunk{{Amount: "50", UnlockEra: "510"}},
			},
			"eve": {Unlocking: []RawDappUnlockChunk{{Amount: "50", UnlockEra: "soon"}}},
		},
	}

	snap, err := raw.Parse()
	require.NoError(t, err)
	assert.Equal(t, "8000000", snap.TotalIssuance.String())
	assert.Equal(t, "2000000", snap.TotalStaked.String())
	assert.Equal(t, "700", snap.Stakers["alice"].Stakes[0].Current().String())
	assert.Equal(t, uint32(510), snap.Stakers["alice"].Unlocking[0].UnlockEra)
	assert.NotContains(t, snap.Stakers, "eve")
	assert.Error(t, snap.Malformed.Err("eve"))
}

func TestContractStake_CurrentEmptyHistory(t *testing.T) {
	assert.Equal(t, "0", ContractStake{Contract: "0x1"}.Current().String())
}
