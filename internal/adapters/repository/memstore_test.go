package repository_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/calboard/internal/adapters/repository"
	"github.com/okian/calboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func event(owner, project string, start time.Time) model.Event {
	return model.Event{
		OwnerID:   owner,
		Title:     "event",
		Date:      model.DateOf(start),
		StartTime: start,
		Duration:  30,
		Type:      model.TypeMeeting,
		ProjectID: project,
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	Convey("Given an empty store", t, func() {
		s := repository.NewMemoryStore(repository.WithIDGenerator(sequentialIDs()))
		So(s.Count(ctx), ShouldEqual, 0)
		So(s.Owners(ctx), ShouldBeEmpty)

		Convey("When events are created out of order", func() {
			late, err := s.Create(ctx, event("alice", "p1", base.Add(3*time.Hour)))
			So(err, ShouldBeNil)
			early, err := s.Create(ctx, event("alice", "p2", base))
			So(err, ShouldBeNil)
			_, err = s.Create(ctx, event("bob", "p1", base.Add(time.Hour)))
			So(err, ShouldBeNil)

			Convey("Then IDs are assigned", func() {
				So(late.ID, ShouldEqual, "id-01")
				So(early.ID, ShouldEqual, "id-02")
				So(s.Count(ctx), ShouldEqual, 3)
			})

			Convey("And reads by owner are time ordered", func() {
				got, err := s.EventsForOwner(ctx, "alice")
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].ID, ShouldEqual, early.ID)
				So(got[1].ID, ShouldEqual, late.ID)
			})

			Convey("And reads by project cross owners", func() {
				got, err := s.EventsForProject(ctx, "p1")
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].OwnerID, ShouldEqual, "bob")
				So(got[1].OwnerID, ShouldEqual, "alice")
			})

			Convey("And owners are listed sorted", func() {
				So(s.Owners(ctx), ShouldResemble, []string{"alice", "bob"})
			})

			Convey("And returned events are copies", func() {
				got, _ := s.EventsForOwner(ctx, "alice")
				got[0].Title = "changed"
				again, _ := s.Get(ctx, got[0].ID)
				So(again.Title, ShouldEqual, "event")
			})

			Convey("And deleting removes the event from every index", func() {
				So(s.Delete(ctx, early.ID), ShouldBeNil)
				_, err := s.Get(ctx, early.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				got, _ := s.EventsForProject(ctx, "p2")
				So(got, ShouldBeEmpty)
				So(errors.Is(s.Delete(ctx, early.ID), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an explicit ID is reused", func() {
			e := event("alice", "", base)
			e.ID = "fixed"
			_, err := s.Create(ctx, e)
			So(err, ShouldBeNil)
			_, err = s.Create(ctx, e)
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
		})

		Convey("When an event has no owner", func() {
			_, err := s.Create(ctx, event(" ", "", base))
			So(errors.Is(err, repository.ErrMissingOwner), ShouldBeTrue)
		})

		Convey("When an unknown owner is read", func() {
			got, err := s.EventsForOwner(ctx, "nobody")
			So(err, ShouldBeNil)
			So(got, ShouldNotBeNil)
			So(got, ShouldBeEmpty)
		})
	})

	Convey("Given events put by ID", t, func() {
		s := repository.NewMemoryStore()
		e := event("alice", "p1", base)
		e.ID = "uid-1/20240115T090000"

		created, err := s.Put(ctx, e)
		So(err, ShouldBeNil)
		So(created, ShouldBeTrue)

		Convey("When the same ID is put again with changes", func() {
			e.Title = "moved"
			e.ProjectID = "p2"
			created, err := s.Put(ctx, e)

			Convey("Then it is replaced and re-indexed", func() {
				So(err, ShouldBeNil)
				So(created, ShouldBeFalse)
				So(s.Count(ctx), ShouldEqual, 1)
				got, _ := s.Get(ctx, e.ID)
				So(got.Title, ShouldEqual, "moved")
				old, _ := s.EventsForProject(ctx, "p1")
				So(old, ShouldBeEmpty)
			})
		})

		Convey("When another owner puts the same ID", func() {
			other := e
			other.OwnerID = "mallory"
			_, err := s.Put(ctx, other)
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
		})

		Convey("When the ID is empty", func() {
			e.ID = ""
			_, err := s.Put(ctx, e)
			So(errors.Is(err, repository.ErrMissingID), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_Concurrent(t *testing.T) {
	Convey("Given concurrent writers and readers", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		base := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				owner := fmt.Sprintf("owner-%d", w%2)
				for i := 0; i < 50; i++ {
					_, _ = s.Create(ctx, event(owner, "", base.Add(time.Duration(i)*time.Minute)))
					_, _ = s.EventsForOwner(ctx, owner)
				}
			}(w)
		}
		wg.Wait()

		So(s.Count(ctx), ShouldEqual, 400)
		got, _ := s.EventsForOwner(ctx, "owner-0")
		So(len(got), ShouldEqual, 200)
		for i := 1; i < len(got); i++ {
			So(got[i-1].StartTime.After(got[i].StartTime), ShouldBeFalse)
		}
	})
}

func TestSeed(t *testing.T) {
	Convey("Given a YAML seed document", t, func() {
		doc := `
events:
  - owner_id: alice
    title: Standup
    start_time: "2024-01-15T09:00"
    duration: 15
    type: meeting
    project_id: p1
    project_name: Apollo
  - owner_id: alice
    title: Review
    start_time: "2024-01-15T14:00:00Z"
    duration: "60"
  - owner_id: alice
    title: ""
    start_time: "2024-01-15T16:00"
    duration: 30
`
		raws, err := repository.ParseSeed(strings.NewReader(doc))
		So(err, ShouldBeNil)
		So(len(raws), ShouldEqual, 3)

		Convey("When it is loaded into a store", func() {
			s := repository.NewMemoryStore()
			n, errs := repository.Seed(context.Background(), s, raws, time.UTC)

			Convey("Then valid events are stored and the bad one reported", func() {
				So(n, ShouldEqual, 2)
				So(len(errs), ShouldEqual, 1)
				got, _ := s.EventsForOwner(context.Background(), "alice")
				So(got[0].Title, ShouldEqual, "Standup")
				So(got[0].Duration, ShouldEqual, model.Minutes(15))
				So(got[1].Duration, ShouldEqual, model.Minutes(60))
			})
		})
	})

	Convey("Given an unknown key in the seed", t, func() {
		_, err := repository.ParseSeed(strings.NewReader("events:\n  - colour: red\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("Given an empty seed", t, func() {
		raws, err := repository.ParseSeed(strings.NewReader(""))
		So(err, ShouldBeNil)
		So(raws, ShouldBeEmpty)
	})

	Convey("Given a missing seed file", t, func() {
		_, err := repository.LoadSeedFile("/does/not/exist.yaml")
		So(err, ShouldNotBeNil)
	})
}
