package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"timebank/api"
	"timebank/handshake"
	"timebank/page"
	"timebank/rating"
)

// tolerated reports whether err is an answer the page is expected to surface
// under contention: rejections, stale views and injected faults.
func tolerated(err error) bool {
	var apiErr *api.Error
	return err == nil || errors.As(err, &apiErr)
}

func done(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func finished(ctx context.Context, err error) (bool, error) {
	switch {
	case errors.Is(err, page.ErrClosed):
		return true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return true, ctx.Err()
	case !tolerated(err):
		return true, err
	default:
		return false, nil
	}
}

// Seeker keeps proposing handshakes on offers, then confirms, rates and
// chats on whatever its view allows.
func Seeker(ctx context.Context, c *page.Controller, offers []int64, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}

		offer := offers[rng.Intn(len(offers))]
		_, _, err := c.Propose(ctx, api.Proposal{OfferID: &offer, Hours: float64(1 + rng.Intn(3))})
		if stopped, err := finished(ctx, err); stopped {
			if err = nilIfClean(err); err != nil {
				return fmt.Errorf("seeker propose: %w", err)
			}
			return nil
		}

		if err := work(ctx, c, rng); err != nil {
			return err
		}
		time.Sleep(time.Duration(20+rng.Intn(40)) * time.Millisecond)
	}
}

// Provider answers proposals, mostly accepting, and works through the
// lifecycle of accepted handshakes.
func Provider(ctx context.Context, c *page.Controller, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		if err := work(ctx, c, rng); err != nil {
			return err
		}
		time.Sleep(time.Duration(15+rng.Intn(30)) * time.Millisecond)
	}
}

// work refreshes the view and performs one permitted action per row.
func work(ctx context.Context, c *page.Controller, rng *rand.Rand) error {
	err := c.Refresh(ctx)
	if stopped, err := finished(ctx, err); stopped {
		return nilIfClean(err)
	}

	for _, row := range c.View() {
		id := row.Record.ID
		p := row.Permissions
		switch {
		case p.CanAccept && rng.Intn(5) == 0:
			_, err = c.Decline(ctx, id)
		case p.CanAccept:
			_, err = c.Accept(ctx, id)
		case p.CanConfirmCompletion:
			_, err = c.Confirm(ctx, id)
		case row.PromptRating:
			_, err = c.Rate(ctx, id, randomRating(rng))
		case p.CanChat && rng.Intn(3) == 0:
			_, err = c.SendMessage(ctx, id, fmt.Sprintf("status check %d", rng.Intn(1000)))
		default:
			continue
		}
		if stopped, err := finished(ctx, err); stopped {
			return nilIfClean(err)
		}
	}
	return nil
}

// Rerater submits ratings for handshakes it already rated. The page must
// reject every attempt before it reaches the backend.
func Rerater(ctx context.Context, c *page.Controller, rng *rand.Rand, stop <-chan struct{}) error {
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		for id, st := range c.Ratings() {
			if !st.HasRated {
				continue
			}
			_, err := c.Rate(ctx, id, randomRating(rng))
			if err == nil {
				return fmt.Errorf("rerater: handshake %s rated twice", id)
			}
			if stopped, err := finished(ctx, err); stopped {
				return nilIfClean(err)
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Chatter keeps a chat poller open on one active handshake at a time.
func Chatter(ctx context.Context, c *page.Controller, stop <-chan struct{}) error {
	var open handshake.ID
	defer func() {
		if open != "" {
			c.CloseChat(open)
		}
	}()
	for {
		if stopped, err := done(ctx, stop); stopped {
			return err
		}
		for _, row := range c.View() {
			if !row.Permissions.CanChat || row.Record.ID == open {
				continue
			}
			if open != "" {
				c.CloseChat(open)
				open = ""
			}
			if _, err := c.OpenChat(row.Record.ID, nil); err != nil {
				if stopped, err := finished(ctx, err); stopped {
					return nilIfClean(err)
				}
				continue
			}
			open = row.Record.ID
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func randomRating(rng *rand.Rand) rating.Submission {
	tags := rng.Perm(len(rating.Tags))[:1+rng.Intn(rating.MaxTags)]
	sub := rating.Submission{Score: rating.MinScore + rng.Intn(rating.MaxScore-rating.MinScore+1)}
	for _, i := range tags {
		sub.Tags = append(sub.Tags, rating.Tags[i])
	}
	return sub
}

// nilIfClean keeps a clean shutdown (ErrClosed, or a stop) from being
// reported as a failure.
func nilIfClean(err error) error {
	if err == nil || errors.Is(err, page.ErrClosed) {
		return nil
	}
	return err
}
