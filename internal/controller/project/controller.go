// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package project reconciles Project resources: the namespace footprint
// (quota, limit range, hub role binding, isolation policy) and the git-host
// organization with its teams and repositories.
package project

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
	"github.com/crucible-dev/crucible/internal/metrics"
)

// GitHostService is the slice of the git-host admin API the project
// reconciler drives.
type GitHostService interface {
	EnsureOrg(ctx context.Context, name, description, visibility string) (bool, error)
	EnsureTeam(ctx context.Context, org, name, permission string) (int64, error)
	SyncTeamMembers(ctx context.Context, teamID int64, desired []string) (int, int, error)
	EnsureRepository(ctx context.Context, org string, repo githost.Repository) (bool, error)
	SeedRepository(ctx context.Context, org, repo, templateURL string) error
	DeleteOrg(ctx context.Context, name string) error
}

var _ GitHostService = (*githost.Client)(nil)

// Reconciler reconciles a Project object.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// GitHost is the git-host admin client. Nil disables organization sync.
	GitHost GitHostService

	// Quota, Limits, Hub and Network carry the operator-level defaults for
	// the namespace footprint.
	Quota   cluster.QuotaDefaults
	Limits  cluster.LimitRangeDefaults
	Hub     cluster.HubAccess
	Network cluster.NetworkParams
}

// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects/finalizers,verbs=update
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users;groups,verbs=get;list;watch
// +kubebuilder:rbac:groups="",resources=namespaces;resourcequotas;limitranges,verbs=get;list;watch;create;update;delete
// +kubebuilder:rbac:groups=rbac.authorization.k8s.io,resources=rolebindings,verbs=get;list;watch;create;update;delete
// +kubebuilder:rbac:groups=networking.k8s.io,resources=networkpolicies,verbs=get;list;watch;create;update;delete

// Reconcile materializes the namespace footprint of one Project and, when
// enabled, its git-host organization.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	project := &workspacev1alpha1.Project{}
	if err := r.Get(ctx, req.NamespacedName, project); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get Project")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := project.DeepCopy()

	if !project.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing project", "name", project.Name)
		return r.finalize(ctx, old, project)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, project); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		project.Status.ObservedGeneration = project.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, project.Status) {
			return
		}

		if err := r.Status().Update(ctx, project); err != nil {
			logger.Error(err, "Failed to update Project status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	pc := r.makeProjectContext(project)

	// The namespace is the fatal path: every other resource lives inside it.
	if err := ensureResource(ctx, cluster.NewNamespaceHandler(r.Client), pc); err != nil {
		controller.MarkFalseCondition(project, ConditionReady, ReasonNamespaceFailed,
			fmt.Sprintf("Failed to ensure project namespace: %v", err))
		logger.Error(err, "Failed to ensure project namespace")
		return ctrl.Result{}, err
	}
	project.Status.Namespace = project.NamespaceName()

	project.Status.Resources = r.ensureNamespaceResources(ctx, pc)

	if r.GitHost != nil && project.GitHostEnabled() {
		if err := r.syncGitHost(ctx, project); err != nil {
			controller.MarkFalseCondition(project, ConditionReady, ReasonGitHostSyncFailed,
				fmt.Sprintf("Failed to synchronize git-host organization: %v", err))
			logger.Error(err, "Failed to synchronize git-host organization")
			return ctrl.Result{}, err
		}
		project.Status.GitHostOrg = project.Name
	} else {
		project.Status.GitHostOrg = ""
	}

	controller.MarkTrueCondition(project, ConditionReady, ReasonProvisioned,
		fmt.Sprintf("Project %q provisioned in namespace %q", project.Name, project.NamespaceName()))
	r.Recorder.Event(project, corev1.EventTypeNormal, "ProjectSynced",
		fmt.Sprintf("Project %s synced", project.Name))

	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

func (r *Reconciler) makeProjectContext(project *workspacev1alpha1.Project) *cluster.ProjectContext {
	return &cluster.ProjectContext{
		Project: project,
		Quota:   r.Quota,
		Limits:  r.Limits,
		Hub:     r.Hub,
		Network: r.Network,
	}
}

// ensureNamespaceResources brings the in-namespace resources to their desired
// state. Each resource is independent: one failure lands in its status entry
// without stopping the rest.
func (r *Reconciler) ensureNamespaceResources(ctx context.Context, pc *cluster.ProjectContext) []workspacev1alpha1.ManagedResourceStatus {
	logger := log.FromContext(ctx)
	projectName := pc.Project.Name

	managed := []struct {
		handler cluster.ResourceHandler[cluster.ProjectContext]
		name    string
	}{
		{cluster.NewResourceQuotaHandler(r.Client), cluster.QuotaName(projectName)},
		{cluster.NewLimitRangeHandler(r.Client), cluster.LimitRangeName(projectName)},
		{cluster.NewHubRoleBindingHandler(r.Client), cluster.HubRoleBindingName},
		{cluster.NewIsolationPolicyHandler(r.Client), cluster.IsolationPolicyName(projectName)},
	}

	statuses := make([]workspacev1alpha1.ManagedResourceStatus, 0, len(managed)+1)
	statuses = append(statuses, workspacev1alpha1.ManagedResourceStatus{
		Kind:  "Namespace",
		Name:  pc.Project.NamespaceName(),
		Ready: true,
	})

	for _, m := range managed {
		st := workspacev1alpha1.ManagedResourceStatus{Kind: m.handler.Name(), Name: m.name}
		if err := ensureResource(ctx, m.handler, pc); err != nil {
			st.Message = err.Error()
			logger.Error(err, "Failed to ensure project resource",
				"resource", m.handler.Name(), "name", m.name)
		} else {
			st.Ready = true
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// ensureResource converges one cluster resource: create when absent, update
// otherwise.
func ensureResource(ctx context.Context, h cluster.ResourceHandler[cluster.ProjectContext], pc *cluster.ProjectContext) error {
	current, err := h.GetCurrentState(ctx, pc)
	if err != nil {
		return err
	}
	if current == nil {
		return h.Create(ctx, pc)
	}
	return h.Update(ctx, pc, current)
}

// syncGitHost ensures the project organization with its declared teams and
// repositories. The organization itself is required; team and repository
// failures are logged and retried on the periodic resync.
func (r *Reconciler) syncGitHost(ctx context.Context, project *workspacev1alpha1.Project) error {
	logger := log.FromContext(ctx)

	created, err := r.GitHost.EnsureOrg(ctx, project.Name, project.Spec.Description, orgVisibility(project))
	if err != nil {
		return fmt.Errorf("failed to ensure organization %q: %w", project.Name, err)
	}
	if created {
		logger.Info("Created git-host organization", "organization", project.Name)
	}

	for _, team := range project.Spec.GitHost.Teams {
		if err := r.syncTeam(ctx, project, team); err != nil {
			logger.Error(err, "Failed to synchronize git-host team",
				"organization", project.Name, "team", team.Name)
		}
	}

	for _, repo := range project.Spec.GitHost.Repositories {
		if err := r.ensureRepository(ctx, project, repo); err != nil {
			logger.Error(err, "Failed to ensure git-host repository",
				"organization", project.Name, "repository", repo.Name)
		}
	}

	return nil
}

// syncTeam converges one declared team: the team itself, then its membership
// by set difference against the users reachable through the team's groups.
func (r *Reconciler) syncTeam(ctx context.Context, project *workspacev1alpha1.Project, team workspacev1alpha1.TeamSpec) error {
	logger := log.FromContext(ctx)

	permission := team.Permission
	if permission == "" {
		permission = "read"
	}
	teamID, err := r.GitHost.EnsureTeam(ctx, project.Name, team.Name, permission)
	if err != nil {
		return err
	}

	desired, err := r.teamMembers(ctx, project, team)
	if err != nil {
		return err
	}

	added, removed, err := r.GitHost.SyncTeamMembers(ctx, teamID, desired)
	if err != nil {
		return err
	}
	if added > 0 {
		metrics.GitHostMembershipChanges.WithLabelValues("add").Add(float64(added))
	}
	if removed > 0 {
		metrics.GitHostMembershipChanges.WithLabelValues("remove").Add(float64(removed))
	}
	if added > 0 || removed > 0 {
		logger.Info("Synchronized git-host team membership",
			"organization", project.Name, "team", team.Name, "added", added, "removed", removed)
	}
	return nil
}

// teamMembers resolves the users that should belong to a team: the union of
// the effective member lists of the team's groups. Each group resolves the
// same way the group reconciler does, so explicitly listed members are kept
// even when they have no User resource.
func (r *Reconciler) teamMembers(ctx context.Context, project *workspacev1alpha1.Project, team workspacev1alpha1.TeamSpec) ([]string, error) {
	logger := log.FromContext(ctx)

	members := make(map[string]struct{})
	for _, groupName := range team.Groups {
		group, err := controller.GetGroup(ctx, r.Client, project, groupName)
		if err == nil && group.Spec.Members != nil {
			for _, member := range group.Spec.Members {
				members[member] = struct{}{}
			}
			continue
		}
		if err != nil && controller.IgnoreHierarchyNotFoundError(err) != nil {
			return nil, err
		}
		if err != nil {
			logger.Info("Deriving team membership without a Group resource", "group", groupName)
		}

		userList := &identityv1alpha1.UserList{}
		if err := r.List(ctx, userList,
			client.InNamespace(project.Namespace),
			client.MatchingFields{controller.IndexKeyUserGroupName: groupName}); err != nil {
			return nil, fmt.Errorf("failed to list users in group %q: %w", groupName, err)
		}
		for _, user := range userList.Items {
			members[user.Name] = struct{}{}
		}
	}

	desired := make([]string, 0, len(members))
	for member := range members {
		desired = append(desired, member)
	}
	slices.Sort(desired)
	return desired, nil
}

// ensureRepository ensures one declared repository. Seed content is pushed
// only on creation; an existing repository keeps its history.
func (r *Reconciler) ensureRepository(ctx context.Context, project *workspacev1alpha1.Project, repo workspacev1alpha1.RepositorySpec) error {
	logger := log.FromContext(ctx)

	created, err := r.GitHost.EnsureRepository(ctx, project.Name, githost.Repository{
		Name:        repo.Name,
		Description: repo.Description,
		Private:     repo.Private,
		AutoInit:    repo.AutoInit,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	logger.Info("Created git-host repository", "organization", project.Name, "repository", repo.Name)
	if repo.TemplateURL == "" {
		return nil
	}
	if err := r.GitHost.SeedRepository(ctx, project.Name, repo.Name, repo.TemplateURL); err != nil {
		return fmt.Errorf("failed to seed repository %q from %q: %w", repo.Name, repo.TemplateURL, err)
	}
	return nil
}

func orgVisibility(project *workspacev1alpha1.Project) string {
	if project.Spec.GitHost != nil && project.Spec.GitHost.Visibility != "" {
		return project.Spec.GitHost.Visibility
	}
	return "private"
}

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("project-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&workspacev1alpha1.Project{}).
		Watches(&identityv1alpha1.User{},
			handler.EnqueueRequestsFromMapFunc(r.listProjectsForUser)).
		Watches(&identityv1alpha1.Group{},
			handler.EnqueueRequestsFromMapFunc(r.listProjectsForGroup)).
		Named("project").
		Complete(r)
}
