package cmd

import (
	"flag"
	"fmt"

	"opshub.dev/opshub/internal/history"
	"opshub.dev/opshub/internal/users"
)

// RunUsers lists interactive accounts or audits the account database.
func RunUsers(args []string) error {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	audit := fs.Bool("audit", false, "run the account policy audit")
	group := fs.String("group", "", "list members of one group")
	passwd := fs.String("passwd", "/etc/passwd", "passwd file")
	groups := fs.String("groups", "/etc/group", "group file")
	fs.Parse(args)

	logger := common.logger()
	cfg, err := common.loadConfig()
	if err != nil {
		return err
	}

	db, err := users.LoadPaths(*passwd, *groups)
	if err != nil {
		return err
	}

	if *group != "" {
		members := db.MembersOf(*group)
		if members == nil {
			return fmt.Errorf("group %q not found", *group)
		}
		for _, m := range members {
			fmt.Println(m)
		}
		return nil
	}

	if *audit {
		result := db.Audit()
		recordRun(logger, cfg, history.Run{
			Command: "users",
			Summary: fmt.Sprintf("audit: %d findings, %d warnings", len(result.Findings), result.Warnings),
			OK:      result.Warnings == 0,
			Details: result,
		})
		return common.render(result)
	}

	return common.render(users.UserList(db.Interactive()))
}
