package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"mp4dao/account"
	"mp4dao/apperr"
	"mp4dao/dispute"
	"mp4dao/ledger"
	"mp4dao/registry"
	"mp4dao/relay"
	"mp4dao/test/chaos"
)

// Env is what every actor shares. Committed counts operations that returned
// nil, which is exactly the number of facts the journal must hold.
type Env struct {
	Registry  *registry.Service
	Ledger    *ledger.Service
	Owner     account.Address
	Accounts  []account.Address
	Committed atomic.Int64
}

func (e *Env) pick(rng *rand.Rand) account.Address {
	return e.Accounts[rng.Intn(len(e.Accounts))]
}

// record counts a success and swallows the rejections the engines are
// supposed to produce under contention. Anything else stops the actor.
func (e *Env) record(op string, err error) error {
	switch {
	case err == nil:
		e.Committed.Add(1)
		return nil
	case apperr.KindOf(err) != "":
		return nil
	case errors.Is(err, chaos.ErrInjected), errors.Is(err, chaos.ErrBackend):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(rng *rand.Rand, base, jitter int) {
	time.Sleep(time.Duration(base+rng.Intn(jitter)) * time.Millisecond)
}

// Registrar registers works drawn from a small shared catalogue, so
// registrars race each other for the same content hashes.
func Registrar(ctx context.Context, env *Env, self account.Address, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		authors := []account.Address{self}
		for want := 1 + rng.Intn(3); len(authors) < want; {
			if co := env.pick(rng); co != self {
				authors = append(authors, co)
			}
		}
		splits := make([]uint32, len(authors))
		remaining := uint32(registry.TotalSplitBps)
		for i := range splits[:len(splits)-1] {
			splits[i] = 1 + uint32(rng.Intn(int(remaining)/2))
			remaining -= splits[i]
		}
		splits[len(splits)-1] = remaining
		// An occasional off-by-one split must be rejected without a trace.
		if rng.Intn(20) == 0 {
			splits[0]++
		}

		content := fmt.Sprintf("catalogue-%d", rng.Intn(400))
		_, err := env.Registry.RegisterWork(ctx, self, registry.RegisterParams{
			ContentHash: registry.HashContent([]byte(content)),
			MetadataURI: "ipfs://" + content,
			Authors:     authors,
			SplitsBps:   splits,
			WorkType:    registry.WorkType(rng.Intn(11)),
		}, env.Registry.RegistrationFee().Add(decimal.NewFromInt(int64(rng.Intn(3)))))
		if err := env.record("register_work", err); err != nil {
			return err
		}

		if n := env.Registry.WorkCount(); n > 0 && rng.Intn(4) == 0 {
			err := env.Registry.UpdateMetadata(ctx, self, 1+uint64(rng.Int63n(int64(n))), fmt.Sprintf("ipfs://rev-%d", rng.Int()))
			if err := env.record("update_metadata", err); err != nil {
				return err
			}
		}
		pause(rng, 2, 8)
	}
}

// Disputer files claims against random works, its own included.
func Disputer(ctx context.Context, env *Env, self account.Address, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if n := env.Registry.WorkCount(); n > 0 {
			_, err := env.Registry.CreateDispute(ctx, self, 1+uint64(rng.Int63n(int64(n))), "prior publication", "ipfs://evidence", env.Registry.DisputeFee())
			if err := env.record("create_dispute", err); err != nil {
				return err
			}
		}
		pause(rng, 5, 15)
	}
}

var outcomes = []dispute.Status{
	dispute.StatusUnderReview,
	dispute.StatusMediation,
	dispute.StatusResolved,
	dispute.StatusDismissed,
	dispute.StatusEscalated,
	dispute.StatusPending,
}

// Mediator bonds itself, drives random disputes forward and now and then
// unstakes below the minimum, racing its own authority away.
func Mediator(ctx context.Context, env *Env, self account.Address, rng *rand.Rand, stop <-chan struct{}) error {
	bond := env.Ledger.MinimumMediatorStake()
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		switch rng.Intn(6) {
		case 0:
			if err := env.record("stake_mediator", env.Ledger.StakeMediator(ctx, self, bond)); err != nil {
				return err
			}
		case 1:
			if err := env.record("unstake_mediator", env.Ledger.UnstakeMediator(ctx, self, bond.Div(decimal.NewFromInt(2)).Floor())); err != nil {
				return err
			}
		default:
			if n := env.Registry.DisputeCount(); n > 0 {
				next := outcomes[rng.Intn(len(outcomes))]
				err := env.Registry.ResolveDispute(ctx, self, 1+uint64(rng.Int63n(int64(n))), next)
				if err := env.record("resolve_dispute", err); err != nil {
					return err
				}
			}
		}
		pause(rng, 3, 10)
	}
}

// Trader moves tokens around with direct transfers and allowances.
func Trader(ctx context.Context, env *Env, self account.Address, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		peer := env.pick(rng)
		amount := ledger.Tokens(1 + rng.Int63n(5_000))
		var (
			op  string
			err error
		)
		switch rng.Intn(3) {
		case 0:
			op, err = "transfer", env.Ledger.Transfer(ctx, self, peer, amount)
		case 1:
			op, err = "approve", env.Ledger.Approve(ctx, self, peer, amount)
		default:
			op, err = "transfer_from", env.Ledger.TransferFrom(ctx, self, peer, env.pick(rng), amount)
		}
		if err := env.record(op, err); err != nil {
			return err
		}
		pause(rng, 1, 5)
	}
}

// Voter runs proposals through their whole lifecycle.
func Voter(ctx context.Context, env *Env, self account.Address, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		n := env.Ledger.ProposalCount()
		var (
			op  string
			err error
		)
		switch roll := rng.Intn(10); {
		case roll == 0 || n == 0:
			op = "create_proposal"
			_, err = env.Ledger.CreateProposal(ctx, self, fmt.Sprintf("raise dispute fee #%d", rng.Int()))
		case roll < 7:
			op, err = "vote", env.Ledger.Vote(ctx, self, 1+uint64(rng.Int63n(int64(n))), rng.Intn(2) == 0)
		case roll < 9:
			op, err = "execute_proposal", env.Ledger.ExecuteProposal(ctx, self, 1+uint64(rng.Int63n(int64(n))))
		default:
			op, err = "cancel_proposal", env.Ledger.CancelProposal(ctx, self, 1+uint64(rng.Int63n(int64(n))))
		}
		if err := env.record(op, err); err != nil {
			return err
		}
		pause(rng, 5, 10)
	}
}

// Minter is the owner issuing rewards until the supply cap pushes back.
func Minter(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		to := env.pick(rng)
		var (
			op  string
			err error
		)
		switch rng.Intn(3) {
		case 0:
			op, err = "mint_reward", env.Ledger.MintReward(ctx, env.Owner, to, env.Ledger.RewardFor(ledger.ActivityWorkRegistered, 1+rng.Int63n(100_000)))
		case 1:
			op, err = "distribute_mediator_reward", env.Ledger.DistributeMediatorReward(ctx, env.Owner, to, env.Ledger.RewardFor(ledger.ActivityDisputeMediated, 1+rng.Int63n(1_000)))
		default:
			op = "pay_with_mp4"
			_, err = env.Ledger.PayWithMP4(ctx, to, ledger.Tokens(1+rng.Int63n(500)))
		}
		if err := env.record(op, err); err != nil {
			return err
		}
		pause(rng, 2, 6)
	}
}

// Admin is the owner toggling the pause switch, the allowlist and the fees.
func Admin(ctx context.Context, env *Env, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		var (
			op  string
			err error
		)
		switch rng.Intn(5) {
		case 0:
			op, err = "pause", env.Registry.Pause(ctx, env.Owner)
		case 1:
			op, err = "unpause", env.Registry.Unpause(ctx, env.Owner)
		case 2:
			op, err = "set_mediator_authorization", env.Registry.SetMediatorAuthorization(ctx, env.Owner, env.pick(rng), rng.Intn(2) == 0)
		case 3:
			op = "withdraw"
			_, err = env.Registry.Withdraw(ctx, env.Owner)
		default:
			// A non-owner trying admin calls must always bounce.
			op, err = "pause", env.Registry.Pause(ctx, env.pick(rng))
		}
		if err := env.record(op, err); err != nil {
			return err
		}
		pause(rng, 40, 60)
	}
}

// Relay drains the journal the way registryd does.
func Relay(ctx context.Context, worker *relay.Worker, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if _, err := worker.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			time.Sleep(50 * time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
