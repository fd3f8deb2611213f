/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publishreconciler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/publishflow/internal/lifecycle"
	"chainguard.dev/publishflow/internal/poll"
	"chainguard.dev/publishflow/plugintest"
	"chainguard.dev/publishflow/publish"
	"chainguard.dev/publishflow/publish/extract"
	"chainguard.dev/publishflow/publish/validate"
	"chainguard.dev/publishflow/reconcilers/githubreconciler"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/changemanager"
	"chainguard.dev/publishflow/reconcilers/githubreconciler/clonemanager"
	"chainguard.dev/publishflow/registry"
	"github.com/chainguard-dev/clog"
	gogit "github.com/go-git/go-git/v5"
	"github.com/google/go-github/v84/github"
)

// reconcileClosed finishes a publish pull request: the issue is closed, the
// branch deleted, and after a merge the remaining submissions of the same
// kind are re-applied before the registry is notified.
func (r *Reconciler) reconcileClosed(ctx context.Context, ev *githubreconciler.Event, gh *github.Client) error {
	log := clog.FromContext(ctx)
	flow := lifecycle.FlowPublish
	flow.Enter(ctx, lifecycle.StateReceived)

	pr := ev.PullRequest
	labels := ev.Labels()
	kind, ok := publish.KindFromLabels(labels)
	if !ok || slices.Contains(labels, publish.RemoveLabel) {
		log.Info("Pull request is not a publish request, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}

	res := ev.Resource()
	number, ok, err := lifecycle.CloseLinkedIssue(ctx, gh, res, pr)
	if err != nil {
		return fmt.Errorf("closing issue: %w", err)
	}
	if !ok {
		log.With("branch", pr.GetHead().GetRef()).Info("Pull request has no linked issue, skipping")
		flow.Enter(ctx, lifecycle.StateSkipped)
		return nil
	}
	flow.Enter(ctx, lifecycle.StateResolved)

	lease, err := r.lease(ctx, res)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer returnLease(ctx, lease)

	branch := pr.GetHead().GetRef()

	var merged publish.Entry
	if pr.GetMerged() {
		// The branch is about to go away, so remember what it added.
		if merged, err = lastEntryAt(ctx, lease, branch, r.paths.For(kind)); err != nil {
			log.Warnf("Failed to read the merged entry: %v", err)
		}
	}

	lifecycle.DeleteBranch(ctx, lease, branch)

	if !pr.GetMerged() {
		log.Info("Pull request closed without merging")
		return nil
	}
	flow.Enter(ctx, lifecycle.StateMerged)

	// Siblings are rebuilt on top of the base, so it has to show the merge.
	snapshot, err := r.waitForMerge(ctx, lease, kind, merged)
	if err != nil {
		return err
	}

	prs, err := changemanager.NewRepository(gh, res.Owner, res.Repo).PullRequestsWithLabel(ctx, kind.String())
	if err != nil {
		return err
	}
	prs = slices.DeleteFunc(prs, func(p *github.PullRequest) bool {
		return p.GetNumber() == pr.GetNumber() || githubreconciler.HasLabel(p.Labels, publish.RemoveLabel)
	})
	if err := lifecycle.ResolveConflicts(ctx, prs, r.reapply(gh, res, lease)); err != nil {
		return err
	}

	return r.dispatch(ctx, gh, res, kind, number, snapshot)
}

// waitForMerge polls the base branch until its registry file holds the
// merged entry and returns that registry.
func (r *Reconciler) waitForMerge(ctx context.Context, lease *clonemanager.Lease, kind publish.Kind, merged publish.Entry) (*registry.Snapshot, error) {
	path := r.paths.For(kind)
	var snapshot *registry.Snapshot
	if err := poll.Until(ctx, r.poll, "waiting for merged entry on "+r.base, func(ctx context.Context) (bool, error) {
		content, err := lease.ReadFileAt(ctx, r.base, path)
		if err != nil {
			return false, err
		}
		s, err := registry.Load(bytes.NewReader(content))
		if err != nil {
			return false, err
		}
		snapshot = s
		return containsEntry(kind, s, merged)
	}); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// reapply appends the last entry of a pull request branch to the current
// base and pushes the branch again.
func (r *Reconciler) reapply(gh *github.Client, res *githubreconciler.Resource, lease *clonemanager.Lease) lifecycle.ApplyFunc {
	return func(ctx context.Context, c lifecycle.Candidate) (bool, error) {
		branch := c.PullRequest.GetHead().GetRef()
		path := r.paths.For(c.Kind)

		content, err := lease.ReadFileAt(ctx, branch, path)
		if err != nil {
			return false, err
		}
		snapshot, err := registry.Load(bytes.NewReader(content))
		if err != nil {
			return false, fmt.Errorf("loading %s at %s: %w", path, branch, err)
		}
		raw, err := snapshot.LastRaw()
		if err != nil {
			return false, fmt.Errorf("reading %s at %s: %w", path, branch, err)
		}
		entry, err := snapshot.Last()
		if err != nil {
			return false, err
		}

		name := entry.String(publish.FieldName)
		if c.Kind == publish.KindPlugin {
			name, _ = publish.NameFromTitle(c.PullRequest.GetTitle(), c.Kind)
		}

		issue, err := changemanager.NewIssue(gh, &githubreconciler.Resource{
			Owner:  res.Owner,
			Repo:   res.Repo,
			Number: c.Issue,
			Type:   githubreconciler.ResourceTypeIssue,
		}).Get(ctx)
		if err != nil {
			return false, err
		}

		return lease.MakeAndPushChanges(ctx, branch, clonemanager.NoReplyAuthor(issue.GetUser().GetLogin()),
			func(_ context.Context, wt *gogit.Worktree) (string, error) {
				files := clonemanager.WorktreeFiles(wt)
				s, err := registry.Read(files, r.paths, c.Kind)
				if err != nil {
					return "", err
				}
				if err := s.AppendRaw(raw); err != nil {
					return "", err
				}
				if err := registry.Write(files, r.paths, c.Kind, s); err != nil {
					return "", err
				}
				return publish.CommitMessage(c.Kind, name, c.Issue), nil
			})
	}
}

// dispatch notifies the registry repository of a merge. snapshot is the
// registry on the base branch after the merge.
func (r *Reconciler) dispatch(
	ctx context.Context,
	gh *github.Client,
	res *githubreconciler.Resource,
	kind publish.Kind,
	number int,
	snapshot *registry.Snapshot,
) error {
	log := clog.FromContext(ctx)
	if r.registryOwner == "" {
		log.Info("No registry repository configured, skipping dispatch")
		return nil
	}

	payload := map[string]any{"type": kind.String()}
	if kind == publish.KindPlugin {
		ok, err := r.pluginPayload(ctx, gh, res, number, snapshot, payload)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return changemanager.NewRepository(gh, r.registryOwner, r.registryRepo).Dispatch(ctx, DispatchEventType, payload)
}

// pluginPayload adds the key, config and, when the load test was skipped,
// the validated data of a merged plugin. It reports false when no dispatch
// should be sent.
func (r *Reconciler) pluginPayload(
	ctx context.Context,
	gh *github.Client,
	res *githubreconciler.Resource,
	number int,
	snapshot *registry.Snapshot,
	payload map[string]any,
) (bool, error) {
	log := clog.FromContext(ctx)

	iss := changemanager.NewIssue(gh, &githubreconciler.Resource{
		Owner:  res.Owner,
		Repo:   res.Repo,
		Number: number,
		Type:   githubreconciler.ResourceTypeIssue,
	})
	issue, err := iss.Get(ctx)
	if err != nil {
		return false, err
	}
	skipTest, err := iss.MaintainerCommented(ctx, publish.SkipTestComment)
	if err != nil {
		return false, err
	}

	body := issue.GetBody()
	config := extract.Config(body)
	if _, err := plugintest.ParseConfig(config); err != nil {
		log.With("issue", number).Warnf("Plugin config is malformed, skipping dispatch: %v", err)
		return false, nil
	}
	payload["config"] = config

	if skipTest {
		result := validate.Validate(ctx, publish.KindPlugin, extract.Extract(body, publish.KindPlugin, extract.WithSkipTest(true)), &publish.Context{
			PreviousData: []publish.Entry{},
			SkipTest:     true,
			Test:         r.test,
			Submitter:    lifecycle.SubmitterOf(issue.GetUser()),
		}, r.checker)
		if !result.Valid {
			log.Warn("Skipped-test plugin no longer validates, skipping dispatch")
			return false, nil
		}
		data, err := result.Data.MarshalJSON()
		if err != nil {
			return false, err
		}
		payload["data"] = string(data)
		payload["key"] = pluginKey(result.Data.String(publish.FieldProjectLink), result.Data.String(publish.FieldModuleName))
		return true, nil
	}

	last, err := snapshot.Last()
	if errors.Is(err, registry.ErrEmpty) {
		log.Warn("Plugin registry is empty, skipping dispatch")
		return false, nil
	} else if err != nil {
		return false, err
	}
	payload["key"] = pluginKey(last.String(publish.FieldProjectLink), last.String(publish.FieldModuleName))
	return true, nil
}

func pluginKey(projectLink, moduleName string) string {
	return projectLink + ":" + moduleName
}

// containsEntry reports whether s holds an entry with the identity of want.
// Without a known entry any content satisfies the wait.
func containsEntry(kind publish.Kind, s *registry.Snapshot, want publish.Entry) (bool, error) {
	if want == nil {
		return true, nil
	}
	id, ok := publish.IdentityOf(kind, publish.Record(want))
	if !ok {
		return true, nil
	}
	entries, err := s.Entries()
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(entries, id.Matches), nil
}

// lastEntryAt returns the last registry entry on branch.
func lastEntryAt(ctx context.Context, lease *clonemanager.Lease, branch, path string) (publish.Entry, error) {
	content, err := lease.ReadFileAt(ctx, branch, path)
	if err != nil {
		return nil, err
	}
	s, err := registry.Load(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return s.Last()
}
