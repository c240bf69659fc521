// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package projectsync

import (
	"context"
	"fmt"
	"slices"

	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	workspacev1alpha1 "github.com/crucible-dev/crucible/api/workspace/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/labels"
	"github.com/crucible-dev/crucible/internal/metrics"
)

// manifestKey is the ConfigMap data key holding the manifest document.
const manifestKey = "projects.yaml"

// Reconciler applies the provisioning manifest ConfigMap. It only ever adds
// or updates custom resources; removing a project from the manifest does not
// delete anything.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// Namespace is the operator namespace holding the manifest ConfigMap.
	// Provisioned custom resources are created there as well.
	Namespace string

	// ConfigMapName names the manifest ConfigMap.
	ConfigMapName string
}

// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch
// +kubebuilder:rbac:groups=workspace.crucible.dev,resources=projects,verbs=get;list;watch;create;update
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=users;groups,verbs=get;list;watch;create;update

// Reconcile parses the manifest and materializes the declared projects,
// their role groups, and their people.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if req.Namespace != r.Namespace || req.Name != r.ConfigMapName {
		return ctrl.Result{}, nil
	}

	cm := &corev1.ConfigMap{}
	if err := r.Get(ctx, req.NamespacedName, cm); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get provisioning manifest")
			return ctrl.Result{}, err
		}
		// Provisioned resources outlive the manifest.
		return ctrl.Result{}, nil
	}

	raw, ok := cm.Data[manifestKey]
	if !ok {
		logger.Info("Provisioning ConfigMap has no manifest key", "key", manifestKey)
		metrics.ReconcileSkips.WithLabelValues("projectsync", "missing-key").Inc()
		return ctrl.Result{}, nil
	}

	manifest, err := ParseManifest([]byte(raw))
	if err != nil {
		// Retrying cannot fix a broken manifest; wait for the next edit.
		logger.Error(err, "Rejecting provisioning manifest")
		r.Recorder.Event(cm, corev1.EventTypeWarning, "InvalidManifest", err.Error())
		metrics.ReconcileSkips.WithLabelValues("projectsync", "invalid-manifest").Inc()
		return ctrl.Result{}, nil
	}

	var errs []error
	for i := range manifest.Projects {
		entry := &manifest.Projects[i]
		if err := r.applyProject(ctx, entry); err != nil {
			logger.Error(err, "Failed to apply manifest entry", "project", entry.Name)
			errs = append(errs, fmt.Errorf("project %q: %w", entry.Name, err))
		}
	}
	if len(errs) > 0 {
		return ctrl.Result{}, kerrors.NewAggregate(errs)
	}

	r.Recorder.Event(cm, corev1.EventTypeNormal, "ProjectsSynced",
		fmt.Sprintf("Applied %d project(s) from the provisioning manifest", len(manifest.Projects)))
	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

// applyProject materializes one manifest entry: the Project, the umbrella
// group, the two role groups, and a User per listed name.
func (r *Reconciler) applyProject(ctx context.Context, entry *ProjectEntry) error {
	if err := r.ensureProject(ctx, entry); err != nil {
		return err
	}

	adminGroup := entry.Name + "-admin"
	memberGroup := entry.Name + "-member"

	if err := r.ensureGroup(ctx, adminGroup, entry.Name,
		fmt.Sprintf("Administrators of project %s", entry.Name)); err != nil {
		return err
	}
	if err := r.ensureGroup(ctx, memberGroup, entry.Name,
		fmt.Sprintf("Members of project %s", entry.Name)); err != nil {
		return err
	}
	if err := r.ensureUmbrellaGroup(ctx, entry.Name, adminGroup, memberGroup); err != nil {
		return err
	}

	for _, username := range entry.Admins {
		if err := r.ensureUserInGroup(ctx, username, adminGroup); err != nil {
			return err
		}
	}
	for _, username := range entry.Members {
		if err := r.ensureUserInGroup(ctx, username, memberGroup); err != nil {
			return err
		}
	}
	return nil
}

// ensureProject creates or updates the Project. Only the fields the manifest
// controls are written; anything set out of band on the Project, such as
// scheduling defaults, is preserved.
func (r *Reconciler) ensureProject(ctx context.Context, entry *ProjectEntry) error {
	desired := workspacev1alpha1.ProjectSpec{
		Description: entry.Description,
		Quota:       TierQuota(entry.Tier),
		LimitRange:  TierLimitRange(entry.Tier),
		GitHost:     gitHostFor(entry),
	}

	project := &workspacev1alpha1.Project{}
	key := client.ObjectKey{Namespace: r.Namespace, Name: entry.Name}
	err := r.Get(ctx, key, project)
	if apierrors.IsNotFound(err) {
		project = &workspacev1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{
				Name:      entry.Name,
				Namespace: r.Namespace,
				Labels:    map[string]string{labels.LabelKeyManagedBy: labels.LabelValueManagedBy},
			},
			Spec: desired,
		}
		if err := r.Create(ctx, project); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		metrics.ProvisionedObjects.WithLabelValues("project").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}

	changed := false
	if project.Spec.Description != desired.Description {
		project.Spec.Description = desired.Description
		changed = true
	}
	if !apiequality.Semantic.DeepEqual(project.Spec.Quota, desired.Quota) {
		project.Spec.Quota = desired.Quota
		changed = true
	}
	if !apiequality.Semantic.DeepEqual(project.Spec.LimitRange, desired.LimitRange) {
		project.Spec.LimitRange = desired.LimitRange
		changed = true
	}
	if !apiequality.Semantic.DeepEqual(project.Spec.GitHost, desired.GitHost) {
		project.Spec.GitHost = desired.GitHost
		changed = true
	}
	if !changed {
		return nil
	}
	if err := r.Update(ctx, project); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	metrics.ProvisionedObjects.WithLabelValues("project").Inc()
	return nil
}

// ensureGroup creates a role group or merges the project into an existing
// one. Members stay nil so membership derives from the users' group lists.
func (r *Reconciler) ensureGroup(ctx context.Context, name, project, description string) error {
	group := &identityv1alpha1.Group{}
	key := client.ObjectKey{Namespace: r.Namespace, Name: name}
	err := r.Get(ctx, key, group)
	if apierrors.IsNotFound(err) {
		group = &identityv1alpha1.Group{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: r.Namespace,
				Labels:    map[string]string{labels.LabelKeyManagedBy: labels.LabelValueManagedBy},
			},
			Spec: identityv1alpha1.GroupSpec{
				Description: description,
				Projects:    []string{project},
			},
		}
		if err := r.Create(ctx, group); err != nil {
			return fmt.Errorf("failed to create group %q: %w", name, err)
		}
		metrics.ProvisionedObjects.WithLabelValues("group").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get group %q: %w", name, err)
	}

	if slices.Contains(group.Spec.Projects, project) {
		return nil
	}
	group.Spec.Projects = append(group.Spec.Projects, project)
	if err := r.Update(ctx, group); err != nil {
		return fmt.Errorf("failed to update group %q: %w", name, err)
	}
	metrics.ProvisionedObjects.WithLabelValues("group").Inc()
	return nil
}

// ensureUmbrellaGroup maintains a group named after the project whose
// subgroups are the role groups, mirroring the provider-side hierarchy.
func (r *Reconciler) ensureUmbrellaGroup(ctx context.Context, project string, subGroups ...string) error {
	group := &identityv1alpha1.Group{}
	key := client.ObjectKey{Namespace: r.Namespace, Name: project}
	err := r.Get(ctx, key, group)
	if apierrors.IsNotFound(err) {
		group = &identityv1alpha1.Group{
			ObjectMeta: metav1.ObjectMeta{
				Name:      project,
				Namespace: r.Namespace,
				Labels:    map[string]string{labels.LabelKeyManagedBy: labels.LabelValueManagedBy},
			},
			Spec: identityv1alpha1.GroupSpec{
				Description: fmt.Sprintf("Access groups for project %s", project),
				SubGroups:   subGroups,
			},
		}
		if err := r.Create(ctx, group); err != nil {
			return fmt.Errorf("failed to create group %q: %w", project, err)
		}
		metrics.ProvisionedObjects.WithLabelValues("group").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get group %q: %w", project, err)
	}

	changed := false
	for _, sub := range subGroups {
		if !slices.Contains(group.Spec.SubGroups, sub) {
			group.Spec.SubGroups = append(group.Spec.SubGroups, sub)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := r.Update(ctx, group); err != nil {
		return fmt.Errorf("failed to update group %q: %w", project, err)
	}
	metrics.ProvisionedObjects.WithLabelValues("group").Inc()
	return nil
}

// ensureUserInGroup creates the User when absent, or appends the group to an
// existing user. Groups acquired outside the manifest are never removed.
func (r *Reconciler) ensureUserInGroup(ctx context.Context, username, group string) error {
	user := &identityv1alpha1.User{}
	key := client.ObjectKey{Namespace: r.Namespace, Name: username}
	err := r.Get(ctx, key, user)
	if apierrors.IsNotFound(err) {
		user = &identityv1alpha1.User{
			ObjectMeta: metav1.ObjectMeta{
				Name:      username,
				Namespace: r.Namespace,
				Labels:    map[string]string{labels.LabelKeyManagedBy: labels.LabelValueManagedBy},
			},
			Spec: identityv1alpha1.UserSpec{
				Groups: []string{group},
			},
		}
		if err := r.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user %q: %w", username, err)
		}
		metrics.ProvisionedObjects.WithLabelValues("user").Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user %q: %w", username, err)
	}

	if slices.Contains(user.Spec.Groups, group) {
		return nil
	}
	user.Spec.Groups = append(user.Spec.Groups, group)
	if err := r.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user %q: %w", username, err)
	}
	metrics.ProvisionedObjects.WithLabelValues("user").Inc()
	return nil
}

// gitHostFor converts the manifest git-host entry. When git hosting is
// enabled without explicit teams, the role groups become the default admin
// and member teams.
func gitHostFor(entry *ProjectEntry) *workspacev1alpha1.ProjectGitHost {
	if entry.GitHost == nil {
		return nil
	}

	gh := &workspacev1alpha1.ProjectGitHost{
		Enabled:    entry.GitHost.Enabled,
		Visibility: entry.GitHost.Visibility,
	}
	for _, team := range entry.GitHost.Teams {
		gh.Teams = append(gh.Teams, workspacev1alpha1.TeamSpec{
			Name:       team.Name,
			Permission: team.Permission,
			Groups:     team.Groups,
		})
	}
	for _, repo := range entry.GitHost.Repositories {
		gh.Repositories = append(gh.Repositories, workspacev1alpha1.RepositorySpec{
			Name:        repo.Name,
			Description: repo.Description,
			Private:     repo.Private,
			AutoInit:    repo.AutoInit,
			TemplateURL: repo.TemplateURL,
		})
	}

	if gh.Enabled && len(gh.Teams) == 0 {
		gh.Teams = []workspacev1alpha1.TeamSpec{
			{Name: "admins", Permission: "admin", Groups: []string{entry.Name + "-admin"}},
			{Name: "members", Permission: "write", Groups: []string{entry.Name + "-member"}},
		}
	}
	return gh
}

// SetupWithManager sets up the controller with the Manager. Only the one
// manifest ConfigMap passes the predicate.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("projectsync-controller")
	}

	manifestOnly := predicate.NewPredicateFuncs(func(obj client.Object) bool {
		return obj.GetNamespace() == r.Namespace && obj.GetName() == r.ConfigMapName
	})

	return ctrl.NewControllerManagedBy(mgr).
		For(&corev1.ConfigMap{}, builder.WithPredicates(manifestOnly)).
		Named("projectsync").
		Complete(r)
}
