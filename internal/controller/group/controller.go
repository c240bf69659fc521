// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package group reconciles Group resources: the identity-provider group, its
// memberships, and the per-project member resources the group grants.
package group

import (
	"context"
	"fmt"
	"slices"

	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/runtime"
	kerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/cluster"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/githost"
	"github.com/crucible-dev/crucible/internal/identity"
	"github.com/crucible-dev/crucible/internal/metrics"
	"github.com/crucible-dev/crucible/internal/resolver"
)

// IdentityService is the slice of the identity-provider admin API the group
// reconciler drives.
type IdentityService interface {
	EnsureRealm(ctx context.Context) (bool, error)
	UpsertGroup(ctx context.Context, name string, attributes map[string][]string) (string, bool, error)
	LookupUser(ctx context.Context, username string) (string, bool, error)
	AddUserToGroup(ctx context.Context, userID, groupID string) error
	DeleteGroup(ctx context.Context, name string) error
}

var _ IdentityService = (*identity.Client)(nil)

// GitHostService is the slice of the git-host API the group reconciler
// drives.
type GitHostService interface {
	EnsureTeam(ctx context.Context, org, name, permission string) (int64, error)
	AddTeamMember(ctx context.Context, teamID int64, username string) (bool, error)
}

var _ GitHostService = (*githost.Client)(nil)

// Reconciler reconciles a Group object.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// Identity is the identity-provider admin client.
	Identity IdentityService

	// GitHost is the git-host admin client. Nil disables team membership
	// sync.
	GitHost GitHostService

	// Storage carries the operator-level defaults applied when a project
	// supplies no storage override.
	Storage resolver.StorageDefaults
}

// +kubebuilder:rbac:groups=identity.crucible.dev,resources=groups,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=groups/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=groups/finalizers,verbs=update
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users,verbs=get;list;watch
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=persistentvolumeclaims,verbs=get;list;watch;create;update;delete

// Reconcile synchronizes one Group with the identity provider and provisions
// the member resources in every project the group declares.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	group := &identityv1alpha1.Group{}
	if err := r.Get(ctx, req.NamespacedName, group); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get Group")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := group.DeepCopy()

	if !group.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing group", "name", group.Name)
		return r.finalize(ctx, old, group)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, group); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		group.Status.ObservedGeneration = group.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, group.Status) {
			return
		}

		if err := r.Status().Update(ctx, group); err != nil {
			logger.Error(err, "Failed to update Group status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	members, err := r.resolveMembers(ctx, group)
	if err != nil {
		logger.Error(err, "Failed to resolve group members")
		return ctrl.Result{}, err
	}

	groupID, err := r.syncProvider(ctx, group)
	if err != nil {
		controller.MarkFalseCondition(group, ConditionReady, ReasonGroupSyncFailed,
			fmt.Sprintf("Failed to synchronize identity-provider group: %v", err))
		logger.Error(err, "Failed to synchronize group with identity provider")
		return ctrl.Result{}, err
	}

	synced, failed := r.syncMembers(ctx, groupID, members)
	group.Status.MemberCount = len(members)
	group.Status.SyncedMembers = synced
	group.Status.FailedMembers = failed

	// Per-project member resources are best-effort; failures are logged and
	// retried on the periodic resync.
	r.syncProjects(ctx, group, members)

	controller.MarkTrueCondition(group, ConditionReady, ReasonSynchronized,
		fmt.Sprintf("Group %q synchronized, %d/%d members", group.Name, synced, len(members)))
	r.Recorder.Event(group, corev1.EventTypeNormal, "GroupSynced",
		fmt.Sprintf("Group %s synced", group.Name))

	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

// resolveMembers returns the effective member list. A non-nil spec.members is
// authoritative, including the explicitly empty list; otherwise membership is
// derived from Users whose spec.groups reference this group.
func (r *Reconciler) resolveMembers(ctx context.Context, group *identityv1alpha1.Group) ([]string, error) {
	if group.Spec.Members != nil {
		return group.Spec.Members, nil
	}

	userList := &identityv1alpha1.UserList{}
	if err := r.List(ctx, userList,
		client.InNamespace(group.Namespace),
		client.MatchingFields{controller.IndexKeyUserGroupName: group.Name}); err != nil {
		return nil, fmt.Errorf("failed to list users referencing group %q: %w", group.Name, err)
	}

	members := make([]string, 0, len(userList.Items))
	for _, user := range userList.Items {
		members = append(members, user.Name)
	}
	slices.Sort(members)
	return members, nil
}

// syncProvider upserts the provider group with the description folded into
// its attributes.
func (r *Reconciler) syncProvider(ctx context.Context, group *identityv1alpha1.Group) (string, error) {
	if _, err := r.Identity.EnsureRealm(ctx); err != nil {
		return "", fmt.Errorf("failed to ensure realm: %w", err)
	}

	groupID, created, err := r.Identity.UpsertGroup(ctx, group.Name, providerAttributes(group))
	if err != nil {
		return "", err
	}
	if created {
		metrics.IdentitySyncOperations.WithLabelValues("group", "create").Inc()
	} else {
		metrics.IdentitySyncOperations.WithLabelValues("group", "update").Inc()
	}
	return groupID, nil
}

// syncMembers adds every member to the provider group. Per-member failures
// are counted, not raised, so one broken account cannot block the rest.
func (r *Reconciler) syncMembers(ctx context.Context, groupID string, members []string) (synced, failed int) {
	logger := log.FromContext(ctx)

	for _, member := range members {
		userID, found, err := r.Identity.LookupUser(ctx, member)
		if err != nil {
			logger.Error(err, "Failed to look up member", "member", member)
			failed++
			continue
		}
		if !found {
			logger.Info("Skipping member without a provider account", "member", member)
			failed++
			continue
		}
		if err := r.Identity.AddUserToGroup(ctx, userID, groupID); err != nil {
			logger.Error(err, "Failed to add member to provider group", "member", member)
			failed++
			continue
		}
		synced++
	}
	return synced, failed
}

// syncProjects ensures member volumes and the group's git-host team in every
// project the group declares.
func (r *Reconciler) syncProjects(ctx context.Context, group *identityv1alpha1.Group, members []string) {
	logger := log.FromContext(ctx)

	for _, projectName := range group.Spec.Projects {
		project, err := controller.GetProjectByName(ctx, r.Client, group, projectName)
		if err != nil {
			if controller.IgnoreHierarchyNotFoundError(err) != nil {
				logger.Error(err, "Failed to get project", "project", projectName)
			} else {
				logger.Info("Skipping project without a Project resource", "project", projectName)
			}
			continue
		}

		r.ensureMemberVolumes(ctx, project, members)
		r.ensureTeamMembership(ctx, group, project, members)
	}
}

// ensureMemberVolumes ensures one home volume per member in the project
// namespace. Projects without a resolvable size are skipped.
func (r *Reconciler) ensureMemberVolumes(ctx context.Context, project *workspacev1alpha1.Project, members []string) {
	logger := log.FromContext(ctx)

	storage, err := resolver.ResolveStorage(nil, project.Spec.Storage, r.Storage)
	if err != nil {
		logger.Error(err, "Failed to resolve storage", "project", project.Name)
		return
	}
	if storage.Empty() {
		return
	}

	for _, member := range members {
		_, _, err := cluster.EnsureWorkspacePVC(ctx, r.Client, cluster.StorageParams{
			Namespace: project.NamespaceName(),
			User:      member,
			Project:   project.Name,
			Size:      storage.Size,
			Class:     storage.Class,
		})
		if err != nil {
			logger.Error(err, "Failed to ensure workspace volume",
				"project", project.Name, "member", member)
		}
	}
}

// ensureTeamMembership ensures the git-host team covering this group in the
// project organization and adds every member to it.
func (r *Reconciler) ensureTeamMembership(ctx context.Context, group *identityv1alpha1.Group, project *workspacev1alpha1.Project, members []string) {
	logger := log.FromContext(ctx)

	if r.GitHost == nil || !project.GitHostEnabled() {
		return
	}

	teamName, permission := project.TeamForGroup(group.Name)
	teamID, err := r.GitHost.EnsureTeam(ctx, project.Name, teamName, permission)
	if err != nil {
		logger.Error(err, "Failed to ensure git-host team",
			"organization", project.Name, "team", teamName)
		return
	}

	for _, member := range members {
		added, err := r.GitHost.AddTeamMember(ctx, teamID, member)
		if err != nil {
			logger.Error(err, "Failed to add member to git-host team",
				"team", teamName, "member", member)
			continue
		}
		if added {
			metrics.GitHostMembershipChanges.WithLabelValues("add").Inc()
		}
	}
}

// providerAttributes merges the spec attributes with the description, which
// the provider stores as a single-valued attribute.
func providerAttributes(group *identityv1alpha1.Group) map[string][]string {
	attrs := make(map[string][]string, len(group.Spec.Attributes)+1)
	for k, v := range group.Spec.Attributes {
		attrs[k] = v
	}
	if group.Spec.Description != "" {
		attrs["description"] = []string{group.Spec.Description}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("group-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&identityv1alpha1.Group{}).
		Watches(&identityv1alpha1.User{},
			handler.EnqueueRequestsFromMapFunc(r.listGroupsForUser)).
		Watches(&workspacev1alpha1.Project{},
			handler.EnqueueRequestsFromMapFunc(r.listGroupsForProject)).
		Named("group").
		Complete(r)
}
