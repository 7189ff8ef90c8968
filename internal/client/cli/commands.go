package cli

import (
	"context"
	"fmt"
)

// Run выполняет одну команду клиента. Возвращаемая ошибка печатается
// вызывающим; код возврата процесса выбирает main.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "add":
		return c.runAdd(ctx)
	case "list":
		return c.runList(ctx, args)
	case "remove":
		return c.runRemove(ctx, args)
	case "sync":
		return c.runSync(ctx)
	case "conflicts":
		return c.runConflicts(ctx, args)
	case "resolve":
		return c.runResolve(ctx, args)
	case "history":
		return c.runHistory(ctx, args)
	default:
		PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}
