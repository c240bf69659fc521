// Copyright 2025 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package identityclient reconciles IdentityClient resources into OAuth/OIDC
// clients on the identity provider.
package identityclient

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
	"github.com/crucible-dev/crucible/internal/controller"
	"github.com/crucible-dev/crucible/internal/identity"
	"github.com/crucible-dev/crucible/internal/metrics"
)

// IdentityService is the slice of the identity-provider admin API the client
// reconciler drives.
type IdentityService interface {
	EnsureRealm(ctx context.Context) (bool, error)
	UpsertClient(ctx context.Context, oc identity.OAuthClient) (string, bool, error)
	AssignScopes(ctx context.Context, clientUID string, defaults, optionals []string) ([]string, error)
	EnsureProtocolMappers(ctx context.Context, clientUID string, mappers []identity.Mapper) error
	DeleteClient(ctx context.Context, clientID string) error
}

var _ IdentityService = (*identity.Client)(nil)

// Reconciler reconciles an IdentityClient object.
type Reconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// Identity is the identity-provider admin client.
	Identity IdentityService
}

// +kubebuilder:rbac:groups=identity.crucible.dev,resources=identityclients,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=identityclients/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=identity.crucible.dev,resources=identityclients/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch

// Reconcile synchronizes one IdentityClient with the identity provider.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (result ctrl.Result, rErr error) {
	logger := log.FromContext(ctx)

	ic := &identityv1alpha1.IdentityClient{}
	if err := r.Get(ctx, req.NamespacedName, ic); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get IdentityClient")
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	// Keep a copy for comparison
	old := ic.DeepCopy()

	if !ic.DeletionTimestamp.IsZero() {
		logger.Info("Finalizing identity client", "clientId", ic.Spec.ClientID)
		return r.finalize(ctx, old, ic)
	}

	if finalizerAdded, err := r.ensureFinalizer(ctx, ic); err != nil || finalizerAdded {
		return ctrl.Result{}, err
	}

	// Deferred status update
	defer func() {
		ic.Status.ObservedGeneration = ic.Generation

		// Skip update if nothing changed
		if apiequality.Semantic.DeepEqual(old.Status, ic.Status) {
			return
		}

		if err := r.Status().Update(ctx, ic); err != nil {
			logger.Error(err, "Failed to update IdentityClient status")
			rErr = kerrors.NewAggregate([]error{rErr, err})
		}
	}()

	secret, resolved := r.resolveSecret(ctx, ic)
	ic.Status.SecretResolved = resolved

	// A confidential client without a usable secret would be created broken,
	// so nothing is sent to the provider until one resolves.
	if !resolved && !ic.Spec.PublicClient {
		controller.MarkFalseCondition(ic, ConditionReady, ReasonSecretUnresolved,
			"No client secret could be resolved from the secret reference or the inline value")
		metrics.ReconcileSkips.WithLabelValues("identityclient", "secret-unresolved").Inc()
		logger.Info("Skipping client sync, no secret resolved", "clientId", ic.Spec.ClientID)
		return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
	}

	if err := r.syncProvider(ctx, ic, secret); err != nil {
		controller.MarkFalseCondition(ic, ConditionReady, ReasonClientSyncFailed,
			fmt.Sprintf("Failed to synchronize OAuth client: %v", err))
		logger.Error(err, "Failed to synchronize client with identity provider")
		return ctrl.Result{}, err
	}

	controller.MarkTrueCondition(ic, ConditionReady, ReasonSynchronized,
		fmt.Sprintf("OAuth client %q synchronized", ic.Spec.ClientID))
	r.Recorder.Event(ic, corev1.EventTypeNormal, "ClientSynced",
		fmt.Sprintf("OAuth client %s synced", ic.Spec.ClientID))

	return ctrl.Result{RequeueAfter: controller.StatusUpdateInterval}, nil
}

// resolveSecret returns the client secret and whether one was found. The
// referenced Secret wins; a failed read falls back to the inline value.
func (r *Reconciler) resolveSecret(ctx context.Context, ic *identityv1alpha1.IdentityClient) (string, bool) {
	logger := log.FromContext(ctx)

	if ref := ic.Spec.SecretRef; ref != nil {
		namespace := ref.Namespace
		if namespace == "" {
			namespace = ic.Namespace
		}
		secret := &corev1.Secret{}
		if err := r.Get(ctx, client.ObjectKey{Namespace: namespace, Name: ref.Name}, secret); err != nil {
			logger.Info("Failed to read referenced secret, falling back to the inline value",
				"secret", ref.Name, "reason", err.Error())
		} else if value, ok := secret.Data[ref.Key]; ok && len(value) > 0 {
			return string(value), true
		} else {
			logger.Info("Referenced secret does not contain the key",
				"secret", ref.Name, "key", ref.Key)
		}
	}

	if ic.Spec.Secret != "" {
		return ic.Spec.Secret, true
	}
	return "", false
}

// syncProvider upserts the OAuth client, then applies scopes and protocol
// mappers against the provider-internal UUID recorded in status.
func (r *Reconciler) syncProvider(ctx context.Context, ic *identityv1alpha1.IdentityClient, secret string) error {
	logger := log.FromContext(ctx)

	if _, err := r.Identity.EnsureRealm(ctx); err != nil {
		return fmt.Errorf("failed to ensure realm: %w", err)
	}

	clientUID, created, err := r.Identity.UpsertClient(ctx, identity.OAuthClient{
		ClientID:           ic.Spec.ClientID,
		Secret:             secret,
		RedirectURIs:       ic.Spec.RedirectURIs,
		WebOrigins:         ic.Spec.WebOrigins,
		Enabled:            ic.IsEnabled(),
		PublicClient:       ic.Spec.PublicClient,
		StandardFlow:       ic.StandardFlowEnabled(),
		DirectAccessGrants: ic.DirectAccessGrantsEnabled(),
	})
	if err != nil {
		return err
	}
	ic.Status.ClientUID = clientUID
	if created {
		metrics.IdentitySyncOperations.WithLabelValues("client", "create").Inc()
	} else {
		metrics.IdentitySyncOperations.WithLabelValues("client", "update").Inc()
	}

	missing, err := r.Identity.AssignScopes(ctx, clientUID, ic.Spec.DefaultScopes, ic.Spec.OptionalScopes)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		logger.Info("Some client scopes are unknown to the realm", "scopes", missing)
	}

	return r.Identity.EnsureProtocolMappers(ctx, clientUID, providerMappers(ic.Spec.ProtocolMappers))
}

// providerMappers converts the spec mappers to the provider client's form.
func providerMappers(spec []identityv1alpha1.ProtocolMapper) []identity.Mapper {
	if len(spec) == 0 {
		return nil
	}
	mappers := make([]identity.Mapper, 0, len(spec))
	for _, m := range spec {
		mappers = append(mappers, identity.Mapper{
			Name:     m.Name,
			Protocol: m.Protocol,
			Type:     m.Type,
			Config:   m.Config,
		})
	}
	return mappers
}

// SetupWithManager sets up the controller with the Manager.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("identityclient-controller")
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&identityv1alpha1.IdentityClient{}).
		Watches(&corev1.Secret{},
			handler.EnqueueRequestsFromMapFunc(r.listClientsForSecret)).
		Named("identityclient").
		Complete(r)
}
