package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/urfave/cli/v3"
)

// UserCreate adds a local user, the anchor for connections, playlists and syncs.
func (r *Runner) UserCreate(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	user := models.NewUser(cmd.String("email"), cmd.String("name"))
	if err := r.users.Create(user); err != nil {
		return err
	}
	r.logger.Debug("user created", "id", user.ID)

	return r.emit(cmd, user, func() {
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Created user %s (%s)", user.Email, user.ID)))
		r.writePlain("%s\n", r.palette.Help("Pass --user "+user.Email+" or set TUNESYNC_USER to act as this user"))
	})
}

// UserList prints every local user.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	users, err := r.users.List()
	if err != nil {
		return err
	}

	return r.emit(cmd, users, func() {
		if len(users) == 0 {
			r.writePlain("%s\n", r.palette.Warn("No users yet, run: tunesync user create --email you@example.com"))
			return
		}
		rows := make([][]string, 0, len(users))
		for _, u := range users {
			rows = append(rows, []string{u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02")})
		}
		r.writeTable([]string{"ID", "Email", "Name", "Created"}, rows)
	})
}
