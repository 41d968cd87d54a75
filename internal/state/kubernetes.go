package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

const (
	appLabel      = "app.kubernetes.io/name"
	appName       = "sqlload"
	kindLabel     = "sqlload.io/kind"
	expiresAnnot  = "sqlload.io/expires"
	holderAnnot   = "sqlload.io/holder"
	targetAnnot   = "sqlload.io/target"
	runConfigKey  = "run"
	runKind       = "run"
	lockKind      = "lock"
	runNamePrefix = "sqlload-run-"
)

// KubernetesManager stores runs and locks as ConfigMaps in one namespace.
// Lock creation relies on the API server rejecting duplicate names.
type KubernetesManager struct {
	client    kubernetes.Interface
	namespace string
}

func NewKubernetesManager(client kubernetes.Interface, namespace string) *KubernetesManager {
	return &KubernetesManager{client: client, namespace: namespace}
}

// NewInClusterManager builds a KubernetesManager from the pod's service account
func NewInClusterManager(namespace string) (*KubernetesManager, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config: %v", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %v", err)
	}

	return NewKubernetesManager(client, namespace), nil
}

func (k *KubernetesManager) runConfigMap(run *Run) (*corev1.ConfigMap, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %v", err)
	}
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        runNamePrefix + run.RunID,
			Labels:      map[string]string{appLabel: appName, kindLabel: runKind},
			Annotations: map[string]string{targetAnnot: run.Target},
		},
		Data: map[string]string{runConfigKey: string(data)},
	}, nil
}

func decodeRun(cm *corev1.ConfigMap) (*Run, error) {
	var run Run
	if err := json.Unmarshal([]byte(cm.Data[runConfigKey]), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %v", err)
	}
	return &run, nil
}

func (k *KubernetesManager) GetRun(ctx context.Context, runID string) (*Run, error) {
	cm, err := k.client.CoreV1().ConfigMaps(k.namespace).Get(ctx, runNamePrefix+runID, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ConfigMap: %v", err)
	}
	return decodeRun(cm)
}

func (k *KubernetesManager) CreateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	cm, err := k.runConfigMap(run)
	if err != nil {
		return err
	}
	if _, err := k.client.CoreV1().ConfigMaps(k.namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("run %s already exists", run.RunID)
		}
		return fmt.Errorf("failed to create ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) UpdateRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	cm, err := k.runConfigMap(run)
	if err != nil {
		return err
	}
	if _, err := k.client.CoreV1().ConfigMaps(k.namespace).Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("run %s not found", run.RunID)
		}
		return fmt.Errorf("failed to update ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) DeleteRun(ctx context.Context, runID string) error {
	err := k.client.CoreV1().ConfigMaps(k.namespace).Delete(ctx, runNamePrefix+runID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete ConfigMap: %v", err)
	}
	return nil
}

func (k *KubernetesManager) ListRuns(ctx context.Context, target string) ([]*Run, error) {
	list, err := k.client.CoreV1().ConfigMaps(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s,%s=%s", appLabel, appName, kindLabel, runKind),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps: %v", err)
	}

	var runs []*Run
	for i := range list.Items {
		cm := &list.Items[i]
		if target != "" && cm.Annotations[targetAnnot] != target {
			continue
		}
		run, err := decodeRun(cm)
		if err != nil {
			continue // Skip invalid runs
		}
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func lockConfigMapName(target string) string {
	return "sqlload-lock-" + lockName(target)
}

func (k *KubernetesManager) LockTarget(ctx context.Context, target, holder string, ttl time.Duration) (bool, error) {
	cms := k.client.CoreV1().ConfigMaps(k.namespace)
	name := lockConfigMapName(target)
	lock := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{appLabel: appName, kindLabel: lockKind},
			Annotations: map[string]string{
				targetAnnot:  target,
				holderAnnot:  holder,
				expiresAnnot: time.Now().Add(ttl).UTC().Format(time.RFC3339Nano),
			},
		},
		Data: map[string]string{
			"locked_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err := cms.Create(ctx, lock, metav1.CreateOptions{})
		if err == nil {
			return true, nil
		}
		if !apierrors.IsAlreadyExists(err) {
			return false, fmt.Errorf("failed to create lock: %v", err)
		}

		held, err := cms.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				continue
			}
			return false, fmt.Errorf("failed to get lock: %v", err)
		}
		expires, err := time.Parse(time.RFC3339Nano, held.Annotations[expiresAnnot])
		if err == nil && expires.After(time.Now()) {
			return false, nil
		}

		// Expired or unreadable, take it over unless someone else just did
		err = cms.Delete(ctx, name, metav1.DeleteOptions{
			Preconditions: &metav1.Preconditions{ResourceVersion: &held.ResourceVersion},
		})
		if err != nil && !apierrors.IsNotFound(err) && !apierrors.IsConflict(err) {
			return false, fmt.Errorf("failed to delete expired lock: %v", err)
		}
	}
	return false, nil
}

func (k *KubernetesManager) UnlockTarget(ctx context.Context, target, holder string) error {
	cms := k.client.CoreV1().ConfigMaps(k.namespace)
	name := lockConfigMapName(target)

	held, err := cms.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get lock: %v", err)
	}
	if held.Annotations[holderAnnot] != holder {
		return ErrLockLost
	}

	// The precondition fails if the lock was taken over after the read
	err = cms.Delete(ctx, name, metav1.DeleteOptions{
		Preconditions: &metav1.Preconditions{ResourceVersion: &held.ResourceVersion},
	})
	switch {
	case err == nil, apierrors.IsNotFound(err):
		return nil
	case apierrors.IsConflict(err):
		return ErrLockLost
	default:
		return fmt.Errorf("failed to delete lock: %v", err)
	}
}
