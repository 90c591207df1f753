package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/approval"
	"github.com/fyrsmithlabs/autopatchd/internal/instruction"
	"github.com/fyrsmithlabs/autopatchd/internal/remote"
	"github.com/fyrsmithlabs/autopatchd/internal/sqlrpc"
)

const migrationTimestampLayout = "20060102T150405"

// approve blocks on the gate when in requires sign-off. A denial or timeout
// returns ErrApprovalDenied.
func (b *batch) approve(ctx context.Context, in instruction.Instruction) error {
	if !instruction.RequiresApproval(in) {
		return nil
	}
	if b.gate == nil {
		return ErrApprovalUnavailable
	}
	if b.ticketID == "" {
		return fmt.Errorf("%w: ticket id is required for approval requests", ErrApprovalUnavailable)
	}

	d, err := b.gate.Await(ctx, approval.NewRequest(b.ticketID, in))
	if err != nil {
		return fmt.Errorf("awaiting approval: %w", err)
	}
	b.approvals = append(b.approvals, d)
	if d.TimedOut {
		return fmt.Errorf("%w: no decision for %s within the approval window", ErrApprovalDenied, in.Type())
	}
	if !d.Approved {
		return fmt.Errorf("%w: %s denied by %s", ErrApprovalDenied, in.Type(), d.By)
	}
	b.logger.Info("instruction approved",
		zap.String("instruction_type", string(in.Type())),
		zap.String("by", d.By))
	return nil
}

func (b *batch) HetznerCommand(ctx context.Context, in *instruction.HetznerCommand) error {
	if in.WhitelistCheck {
		if err := b.whitelist.Check(in.Command).Err(); err != nil {
			return err
		}
	}
	if err := b.approve(ctx, in); err != nil {
		return err
	}
	if b.remote == nil {
		return fmt.Errorf("hetzner command: %w", remote.ErrNotConfigured)
	}

	res, err := b.remote.Run(ctx, in.Command)
	if err != nil {
		return err
	}
	b.remoteOps++
	b.logger.Info("remote command executed",
		zap.String("command", in.Command),
		zap.Int("stdout_bytes", len(res.Stdout)))
	return nil
}

func (b *batch) SupabaseMigration(ctx context.Context, in *instruction.SupabaseMigration) error {
	if err := b.approve(ctx, in); err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.sql", b.now().UTC().Format(migrationTimestampLayout), in.MigrationName)
	path, err := b.resolve(filepath.Join(b.cfg.MigrationsDir, name))
	if err != nil {
		return err
	}
	if err := b.files.write(path, []byte(in.SQL)); err != nil {
		return err
	}
	b.logger.Info("migration file written", zap.String("file", b.rel(path)))

	if err := b.execSQL(ctx, in.SQL); err != nil {
		return fmt.Errorf("migration %s: %w", in.MigrationName, err)
	}
	b.remoteOps++
	return nil
}

func (b *batch) SupabaseRLSPolicy(ctx context.Context, in *instruction.SupabaseRLSPolicy) error {
	if err := b.approve(ctx, in); err != nil {
		return err
	}
	if err := b.execSQL(ctx, in.SQL); err != nil {
		return fmt.Errorf("rls policy %s: %w", in.PolicyName, err)
	}
	b.remoteOps++
	b.logger.Info("rls policy applied",
		zap.String("policy", in.PolicyName),
		zap.String("table", in.TableName))
	return nil
}

func (b *batch) execSQL(ctx context.Context, sql string) error {
	if b.sql == nil {
		return sqlrpc.ErrNotConfigured
	}
	return b.sql.ExecSQL(ctx, sql)
}

// isRemoteFailure reports whether err came from the remote channel or RPC.
func isRemoteFailure(err error) bool {
	var exitErr *remote.ExitError
	return errors.As(err, &exitErr) ||
		errors.Is(err, remote.ErrCommandNotAllowed) ||
		errors.Is(err, remote.ErrNotConfigured) ||
		errors.Is(err, sqlrpc.ErrNotConfigured)
}
