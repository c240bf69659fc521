// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package githostclient reconciles GitHostClient resources. Each resource
// drives one OAuth authentication source on the git host so that git logins
// are delegated to the identity provider.
package githostclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	kerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"

	identityv1alpha1 "github.com/crucible-dev/crucible/api/identity/v1alpha1"
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/githost"
	"github.com/crucible-dev/crucible/internal/metrics"
)

// defaultReadyTimeout bounds the git host availability probe when the
// reconciler carries no explicit timeout.
const defaultReadyTimeout = 30 * time.Second

// SourceService is the slice of the git-host admin API the reconciler drives.
type SourceService interface {
	WaitReady(ctx context.Context, timeout time.Duration) error
	EnsureOAuthSource(ctx context.Context, src githost.OAuthSource) (int64, bool, error)
	DeleteOAuthSource(ctx context.Context, name string) error
}

var _ SourceService = (*githost.Client)(nil)

// Reconciler reconciles a GitHostClient object. The git host connection is
// rebuilt on every reconcile because the admin credentials live in Secrets
// and may rotate between runs.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// NewSourceClient builds the git host client for one reconcile. Defaults
	// to githost.NewClient.
	NewSourceClient func(cfg githost.Config) (SourceService, error)

	// ReadyTimeout bounds the availability probe before the first admin call.
	ReadyTimeout time.Duration
}

// credentials are the secrets a sync needs, resolved from the cluster.
type credentials struct {
	adminUsername string
	adminPassword string
	clientID      string
	clientSecret  string
}

// +kubebuilder:rbac:groups=identity.crucible.dev,resources=githostclients,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=githostclients/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=githostclients/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch

// Reconcile upserts the OAuth authentication source described by one
// GitHostClient on the git host.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	ghc := &identityv1alpha1.GitHostClient{}
	if err := r.Get(ctx, req.NamespacedName, ghc); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get GitHostClient")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := ghc.DeepCopy()

	if !ghc.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing git host client", "name", ghc.Name)
		return r.finalize(ctx, old, ghc)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, ghc); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		ghc.Status.ObservedGeneration = ghc.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, ghc.Status) {
			return
		}

		if err := r.Status().Update(ctx, ghc); err != nil {
			logger.Error(err, "Failed to update GitHostClient status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	creds, err := r.resolveCredentials(ctx, ghc)
	if err != nil {
		// Credentials typically arrive from a bootstrap job; retry on the
		// periodic interval and on Secret events instead of hot-looping.
		logger.Info("Credentials not resolvable yet", "reason", err.Error())
		controller.MarkFalseCondition(ghc, ConditionReady, ReasonCredentialsUnresolved,
			fmt.Sprintf("Credentials not resolvable: %v", err))
		metrics.ReconcileSkips.WithLabelValues("githostclient", "credentials-unresolved").Inc()
		return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
	}

	svc, err := r.sourceClient(ghc, creds)
	if err != nil {
		controller.MarkFalseCondition(ghc, ConditionReady, ReasonSourceSyncFailed,
			fmt.Sprintf("Failed to build git host client: %v", err))
		logger.Error(err, "Failed to build git host client")
		return ctrl.Result{}, err
	}

	if err := svc.WaitReady(ctx, r.readyTimeout()); err != nil {
		controller.MarkFalseCondition(ghc, ConditionReady, ReasonGitHostUnavailable,
			fmt.Sprintf("Git host not reachable: %v", err))
		logger.Error(err, "Git host not reachable", "host", ghc.Spec.HostURL)
		return ctrl.Result{}, err
	}

	src := githost.OAuthSource{
		Name:           ghc.OAuthSourceName(),
		ClientID:       creds.clientID,
		ClientSecret:   creds.clientSecret,
		Scopes:         ghc.Spec.Scopes,
		GroupClaimName: ghc.GroupClaimName(),
		SkipLocalTwoFA: true,
	}
	if ghc.AutoDiscoverEnabled() {
		src.DiscoveryURL = githost.DiscoveryURL(ghc.Spec.IdentityURL, ghc.Spec.Realm)
	}

	sourceID, created, err := svc.EnsureOAuthSource(ctx, src)
	if err != nil {
		controller.MarkFalseCondition(ghc, ConditionReady, ReasonSourceSyncFailed,
			fmt.Sprintf("Failed to synchronize OAuth source: %v", err))
		logger.Error(err, "Failed to synchronize OAuth source", "source", src.Name)
		return ctrl.Result{}, err
	}
	ghc.Status.SourceID = sourceID

	controller.MarkTrueCondition(ghc, ConditionReady, ReasonSynchronized,
		fmt.Sprintf("OAuth source %q synchronized", src.Name))
	if created {
		r.Recorder.Event(ghc, corev1.EventTypeNormal, "SourceCreated",
			fmt.Sprintf("OAuth source %s created on %s", src.Name, ghc.Spec.HostURL))
	}

	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

// resolveCredentials reads the git host admin pair and the OAuth client pair
// from their Secrets. All four values must be present.
func (r *Reconciler) resolveCredentials(ctx context.Context, ghc *identityv1alpha1.GitHostClient) (credentials, error) {
	var creds credentials

	admin := ghc.Spec.AdminSecretRef
	adminSecret, err := r.getSecret(ctx, ghc.Namespace, admin.Namespace, admin.Name)
	if err != nil {
		return creds, fmt.Errorf("admin secret: %w", err)
	}
	if creds.adminUsername, err = secretValue(adminSecret, admin.UsernameKey, "username"); err != nil {
		return creds, fmt.Errorf("admin secret: %w", err)
	}
	if creds.adminPassword, err = secretValue(adminSecret, admin.PasswordKey, "password"); err != nil {
		return creds, fmt.Errorf("admin secret: %w", err)
	}

	oidc := ghc.Spec.OIDCSecretRef
	oidcSecret, err := r.getSecret(ctx, ghc.Namespace, oidc.Namespace, oidc.Name)
	if err != nil {
		return creds, fmt.Errorf("oidc secret: %w", err)
	}
	if creds.clientID, err = secretValue(oidcSecret, oidc.ClientIDKey, "clientId"); err != nil {
		return creds, fmt.Errorf("oidc secret: %w", err)
	}
	if creds.clientSecret, err = secretValue(oidcSecret, oidc.ClientSecretKey, "clientSecret"); err != nil {
		return creds, fmt.Errorf("oidc secret: %w", err)
	}

	return creds, nil
}

func (r *Reconciler) getSecret(ctx context.Context, defaultNamespace, namespace, name string) (*corev1.Secret, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	secret := &corev1.Secret{}
	if err := r.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// secretValue reads one data key, falling back to the conventional key name
// when the reference leaves it empty.
func secretValue(secret *corev1.Secret, key, defaultKey string) (string, error) {
	if key == "" {
		key = defaultKey
	}
	value, ok := secret.Data[key]
	if !ok || len(value) == 0 {
		return "", fmt.Errorf("secret %s/%s has no %q data", secret.Namespace, secret.Name, key)
	}
	return string(value), nil
}

func (r *Reconciler) sourceClient(ghc *identityv1alpha1.GitHostClient, creds credentials) (SourceService, error) {
	cfg := githost.Config{
		BaseURL:            ghc.Spec.HostURL,
		AdminUsername:      creds.adminUsername,
		AdminPassword:      creds.adminPassword,
		InsecureSkipVerify: ghc.Spec.InsecureSkipVerify,
	}
	if r.NewSourceClient != nil {
		return r.NewSourceClient(cfg)
	}
	return githost.NewClient(cfg, slog.Default())
}

func (r *Reconciler) readyTimeout() time.Duration {
	if r.ReadyTimeout > 0 {
		return r.ReadyTimeout
	}
	return defaultReadyTimeout
}

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("githostclient-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&identityv1alpha1.GitHostClient{}).
		Watches(&corev1.Secret{},
			handler.EnqueueRequestsFromMapFunc(r.listClientsForSecret)).
		Named("githostclient").
		Complete(r)
}
