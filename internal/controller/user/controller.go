// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package user reconciles User resources: the identity-provider account, the
// per-project workspace volumes and the git-host team memberships reachable
// through the user's groups.
package user

import (
	"context"
	"fmt"

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

// IdentityService is the slice of the identity-provider admin API the user
// reconciler drives.
type IdentityService interface {
	EnsureRealm(ctx context.Context) (bool, error)
	UpsertUser(ctx context.Context, user identity.User) (string, bool, error)
	SetPassword(ctx context.Context, userID, password string, temporary bool) error
	ReplaceUserGroups(ctx context.Context, userID string, groups []string) ([]string, error)
	DeleteUser(ctx context.Context, username string) error
}

var _ IdentityService = (*identity.Client)(nil)

// GitHostService is the slice of the git-host API the user reconciler drives.
type GitHostService interface {
	EnsureTeam(ctx context.Context, org, name, permission string) (int64, error)
	AddTeamMember(ctx context.Context, teamID int64, username string) (bool, error)
}

var _ GitHostService = (*githost.Client)(nil)

// Reconciler reconciles a User object.
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

// groupProjects pairs one of the user's groups with the resolved Project
// resources that group grants access to.
type groupProjects struct {
	group    string
	projects []*workspacev1alpha1.Project
}

// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users/finalizers,verbs=update
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=groups,verbs=get;list;watch
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=persistentvolumeclaims,verbs=get;list;watch;create;update;delete

// Reconcile synchronizes one User with the identity provider, then provisions
// the derived resources in every project reachable through its groups.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	user := &identityv1alpha1.User{}
	if err := r.Get(ctx, req.NamespacedName, user); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get User")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := user.DeepCopy()

	if !user.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing user", "name", user.Name)
		return r.finalize(ctx, old, user)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, user); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		user.Status.ObservedGeneration = user.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, user.Status) {
			return
		}

		if err := r.Status().Update(ctx, user); err != nil {
			logger.Error(err, "Failed to update User status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	// Identity-provider sync is the fatal path: nothing below makes sense
	// without the account existing.
	userID, err := r.syncIdentity(ctx, user)
	if err != nil {
		controller.MarkFalseCondition(user, ConditionReady, ReasonIdentitySyncFailed,
			fmt.Sprintf("Failed to synchronize identity-provider account: %v", err))
		logger.Error(err, "Failed to synchronize user with identity provider")
		return ctrl.Result{}, err
	}
	logger.Info("Synchronized identity-provider account", "name", user.Name, "userID", userID)

	reachable, err := r.reachableProjects(ctx, user)
	if err != nil {
		logger.Error(err, "Failed to resolve projects reachable through groups")
		return ctrl.Result{}, err
	}

	// Storage and team membership are best-effort: partial failures land in
	// the status lists and are retried on the periodic resync.
	r.syncStorage(ctx, user, reachable)
	r.syncTeams(ctx, user, reachable)

	controller.MarkTrueCondition(user, ConditionReady, ReasonSynchronized,
		fmt.Sprintf("User %q synchronized across %d project(s)", user.Name, len(user.Status.Storage)))
	r.Recorder.Event(user, corev1.EventTypeNormal, "UserSynced",
		fmt.Sprintf("User %s synced", user.Name))

	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

// syncIdentity upserts the provider account, applies the password policy and
// replaces the group memberships to match the spec exactly.
func (r *Reconciler) syncIdentity(ctx context.Context, user *identityv1alpha1.User) (string, error) {
	logger := log.FromContext(ctx)

	if _, err := r.Identity.EnsureRealm(ctx); err != nil {
		return "", fmt.Errorf("failed to ensure realm: %w", err)
	}

	userID, created, err := r.Identity.UpsertUser(ctx, identity.User{
		Username:   user.Name,
		Email:      user.Spec.Email,
		FirstName:  user.Spec.FirstName,
		LastName:   user.Spec.LastName,
		Enabled:    user.IsEnabled(),
		Attributes: user.Spec.Attributes,
	})
	if err != nil {
		return "", err
	}
	if created {
		metrics.IdentitySyncOperations.WithLabelValues("user", "create").Inc()
	} else {
		metrics.IdentitySyncOperations.WithLabelValues("user", "update").Inc()
	}

	if err := r.applyPasswordPolicy(ctx, user, userID); err != nil {
		return "", err
	}

	missing, err := r.Identity.ReplaceUserGroups(ctx, userID, user.Spec.Groups)
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		// The group reconciler creates provider groups; membership lands on
		// the next resync once they exist.
		logger.Info("Some groups do not exist on the identity provider yet", "groups", missing)
	}

	return userID, nil
}

// applyPasswordPolicy sets the account credential. A spec password is applied
// permanently on every reconcile. Without one, a temporary password is
// generated exactly once, applied, and surfaced through status; later
// reconciles leave the credential untouched.
func (r *Reconciler) applyPasswordPolicy(ctx context.Context, user *identityv1alpha1.User, userID string) error {
	if user.Spec.Password != "" {
		return r.Identity.SetPassword(ctx, userID, user.Spec.Password, false)
	}

	if user.Status.InitialPassword != "" {
		return nil
	}

	password, err := identity.GenerateTempPassword()
	if err != nil {
		return err
	}
	if err := r.Identity.SetPassword(ctx, userID, password, true); err != nil {
		return err
	}
	user.Status.InitialPassword = password
	return nil
}

// reachableProjects resolves the user's groups to Group resources and those
// to Project resources. Groups or projects that do not exist yet are skipped;
// their own reconcilers re-trigger this one through the shared watches.
func (r *Reconciler) reachableProjects(ctx context.Context, user *identityv1alpha1.User) ([]groupProjects, error) {
	logger := log.FromContext(ctx)

	out := make([]groupProjects, 0, len(user.Spec.Groups))
	for _, groupName := range user.Spec.Groups {
		group, err := controller.GetGroup(ctx, r.Client, user, groupName)
		if err != nil {
			if controller.IgnoreHierarchyNotFoundError(err) != nil {
				return nil, err
			}
			logger.Info("Skipping group without a Group resource", "group", groupName)
			continue
		}

		gp := groupProjects{group: groupName}
		for _, projectName := range group.Spec.Projects {
			project, err := controller.GetProjectByName(ctx, r.Client, user, projectName)
			if err != nil {
				if controller.IgnoreHierarchyNotFoundError(err) != nil {
					return nil, err
				}
				logger.Info("Skipping project without a Project resource",
					"group", groupName, "project", projectName)
				continue
			}
			gp.projects = append(gp.projects, project)
		}
		out = append(out, gp)
	}
	return out, nil
}

// syncStorage ensures one home volume per reachable project and records the
// per-project outcome in status. Failures never abort the reconcile.
func (r *Reconciler) syncStorage(ctx context.Context, user *identityv1alpha1.User, reachable []groupProjects) {
	statuses := make([]identityv1alpha1.StorageProvisionStatus, 0, len(reachable))
	seen := make(map[string]bool)
	for _, gp := range reachable {
		for _, project := range gp.projects {
			if seen[project.Name] {
				continue
			}
			seen[project.Name] = true
			statuses = append(statuses, r.ensureProjectVolume(ctx, user, project))
		}
	}
	user.Status.Storage = statuses
}

// ensureProjectVolume resolves the storage configuration for one project and
// ensures the user's claim in the project namespace. No resolved size means
// the volume is skipped, not failed.
func (r *Reconciler) ensureProjectVolume(ctx context.Context, user *identityv1alpha1.User, project *workspacev1alpha1.Project) identityv1alpha1.StorageProvisionStatus {
	logger := log.FromContext(ctx)

	st := identityv1alpha1.StorageProvisionStatus{Project: project.Name}

	storage, err := resolver.ResolveStorage(nil, project.Spec.Storage, r.Storage)
	if err != nil {
		st.State = identityv1alpha1.SyncStateErrored
		st.Message = err.Error()
		logger.Error(err, "Failed to resolve storage", "project", project.Name)
		return st
	}
	if storage.Empty() {
		st.State = identityv1alpha1.SyncStateSkipped
		st.Message = "no storage size configured"
		return st
	}

	claimName, created, err := cluster.EnsureWorkspacePVC(ctx, r.Client, cluster.StorageParams{
		Namespace: project.NamespaceName(),
		User:      user.Name,
		Project:   project.Name,
		Size:      storage.Size,
		Class:     storage.Class,
	})
	if err != nil {
		st.State = identityv1alpha1.SyncStateErrored
		st.Message = err.Error()
		logger.Error(err, "Failed to ensure workspace volume", "project", project.Name)
		return st
	}

	st.State = identityv1alpha1.SyncStateProvisioned
	st.ClaimName = claimName
	st.Size = storage.Size.String()
	if created {
		logger.Info("Provisioned workspace volume", "project", project.Name, "claim", claimName)
	}
	return st
}

// syncTeams adds the user to the git-host team covering each of its groups in
// every organization of that group's projects, recording the per-team outcome
// in status.
func (r *Reconciler) syncTeams(ctx context.Context, user *identityv1alpha1.User, reachable []groupProjects) {
	logger := log.FromContext(ctx)

	if r.GitHost == nil {
		user.Status.GitHost = nil
		return
	}

	statuses := make([]identityv1alpha1.TeamMembershipStatus, 0, len(reachable))
	seen := make(map[string]bool)
	for _, gp := range reachable {
		for _, project := range gp.projects {
			if !project.GitHostEnabled() {
				continue
			}

			teamName, permission := project.TeamForGroup(gp.group)
			key := project.Name + "/" + teamName
			if seen[key] {
				continue
			}
			seen[key] = true

			st := identityv1alpha1.TeamMembershipStatus{
				Organization: project.Name,
				Team:         teamName,
			}

			teamID, err := r.GitHost.EnsureTeam(ctx, project.Name, teamName, permission)
			if err != nil {
				st.State = identityv1alpha1.SyncStateErrored
				st.Message = err.Error()
				logger.Error(err, "Failed to ensure git-host team",
					"organization", project.Name, "team", teamName)
				statuses = append(statuses, st)
				continue
			}

			added, err := r.GitHost.AddTeamMember(ctx, teamID, user.Name)
			if err != nil {
				st.State = identityv1alpha1.SyncStateErrored
				st.Message = err.Error()
				logger.Error(err, "Failed to add user to git-host team",
					"organization", project.Name, "team", teamName)
				statuses = append(statuses, st)
				continue
			}
			if added {
				metrics.GitHostMembershipChanges.WithLabelValues("add").Inc()
			}

			st.State = identityv1alpha1.SyncStateProvisioned
			statuses = append(statuses, st)
		}
	}
	user.Status.GitHost = statuses
}

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("user-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&identityv1alpha1.User{}).
		Watches(&identityv1alpha1.Group{},
			handler.EnqueueRequestsFromMapFunc(r.listUsersForGroup)).
		Watches(&workspacev1alpha1.Project{},
			handler.EnqueueRequestsFromMapFunc(r.listUsersForProject)).
		Named("user").
		Complete(r)
}
