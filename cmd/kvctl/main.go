package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"

	"github.com/ruteri/kvgateway/cmd/flags"
	"github.com/ruteri/kvgateway/common"
	"github.com/ruteri/kvgateway/interfaces"
	"github.com/ruteri/kvgateway/storage"
	"github.com/urfave/cli/v2"
)

var timeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 0,
	Usage: "request timeout, 0 for none",
}

var strictFlag = &cli.BoolFlag{
	Name:  "strict",
	Value: true,
	Usage: "fail on non-2xx gateway responses",
}

func main() {
	app := &cli.App{
		Name:    "kvctl",
		Usage:   "Read and write keys on a running kvgateway",
		Version: common.Version,
		Flags: append([]cli.Flag{
			flags.GatewayAddrFlag,
			timeoutFlag,
			strictFlag,
			flags.LogServiceFlagFn("kvctl"),
		}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print the value of a key",
				ArgsUsage: "<key>",
				Action:    withStore(getAction),
			},
			{
				Name:      "set",
				Usage:     "store a value, read from stdin when omitted",
				ArgsUsage: "<key> [value]",
				Action:    withStore(setAction),
			},
			{
				Name:      "delete",
				Usage:     "remove a key",
				ArgsUsage: "<key>",
				Action:    withStore(deleteAction),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withStore(action func(*cli.Context, interfaces.KVStore) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		if cCtx.NArg() < 1 {
			return cli.ShowSubcommandHelp(cCtx)
		}

		logger := flags.SetupLogger(cCtx)

		addr, err := url.Parse(cCtx.String(flags.GatewayAddrFlag.Name))
		if err != nil {
			return fmt.Errorf("invalid gateway address: %w", err)
		}

		store, err := storage.NewRemoteStore(addr, storage.RemoteOptions{
			Timeout:      cCtx.Duration(timeoutFlag.Name),
			StrictStatus: cCtx.Bool(strictFlag.Name),
		}, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		return action(cCtx, store)
	}
}

func getAction(cCtx *cli.Context, store interfaces.KVStore) error {
	key := cCtx.Args().First()
	value, err := store.Get(cCtx.Context, []byte(key))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return cli.Exit(fmt.Sprintf("no %s key", key), 1)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cCtx.App.Writer, string(value))
	return err
}

func setAction(cCtx *cli.Context, store interfaces.KVStore) error {
	key := cCtx.Args().First()

	var value []byte
	if cCtx.NArg() > 1 {
		value = []byte(cCtx.Args().Get(1))
	} else {
		var err error
		value, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("could not read value: %w", err)
		}
	}

	return store.Set(cCtx.Context, []byte(key), value)
}

func deleteAction(cCtx *cli.Context, store interfaces.KVStore) error {
	return store.Delete(cCtx.Context, []byte(cCtx.Args().First()))
}
