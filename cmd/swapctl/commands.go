package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lightningnetwork/lnswap/autoswap"
	"github.com/lightningnetwork/lnswap/swap"
	"github.com/lightningnetwork/lnswap/swapmgr"
)

func manager(opts *options) (*swapmgr.Manager, error) {
	store, err := swap.NewFileStore(opts.DataDir)
	if err != nil {
		return nil, err
	}
	return swapmgr.New(swapmgr.Config{Store: store}), nil
}

type listCommand struct {
	opts *options
}

func (c *listCommand) Execute(_ []string) error {
	mgr, err := manager(c.opts)
	if err != nil {
		return err
	}

	ids, err := mgr.List()
	if err != nil {
		return err
	}

	for _, id := range ids {
		rec, err := mgr.Get(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %-10s %s\n", id, rec.Role, rec.State)
	}
	return nil
}

type dumpCommand struct {
	opts *options

	Args struct {
		SwapID string `positional-arg-name:"swap-id"`
	} `positional-args:"yes" required:"yes"`
}

func (c *dumpCommand) Execute(_ []string) error {
	id, err := uuid.Parse(c.Args.SwapID)
	if err != nil {
		return err
	}

	mgr, err := manager(c.opts)
	if err != nil {
		return err
	}

	out, err := mgr.Dump(id)
	if err != nil {
		return err
	}

	fmt.Print(out)
	return nil
}

type adjustCommand struct {
	opts *options

	Args struct {
		SwapID string `positional-arg-name:"swap-id"`
		Target string `positional-arg-name:"target-state"`
	} `positional-args:"yes" required:"yes"`
}

func (c *adjustCommand) Execute(_ []string) error {
	id, err := uuid.Parse(c.Args.SwapID)
	if err != nil {
		return err
	}

	mgr, err := manager(c.opts)
	if err != nil {
		return err
	}

	rec, err := mgr.Adjust(id, swap.State(c.Args.Target))
	if err != nil {
		return err
	}

	fmt.Printf("%s is now %s\n", id, rec.State)
	return nil
}

type stopAllCommand struct{}

func (c *stopAllCommand) Execute(_ []string) error {
	autoswap.StopAll()
	fmt.Println("stop flag set; running autoswap drivers will exit on their next poll")
	return nil
}
