package exec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
)

// K8sTarget identifies the pod a Kubernetes Executor runs commands inside.
type K8sTarget struct {
	Context   string
	Namespace string
	Pod       string
	Container string
}

// Kubernetes runs commands inside a target pod via the same exec mechanism
// kubectl exec uses. Clientsets are cached per kube-context so repeated
// commands in one session do not re-resolve kubeconfig or re-dial the API
// server.
type Kubernetes struct {
	Target K8sTarget

	mu      sync.Mutex
	clients map[string]*kubernetes.Clientset
	configs map[string]*rest.Config
}

// Run execs "bash -c command" inside the configured pod/container. host is
// accepted for interface symmetry but ignored — the target pod is fixed by
// K8sTarget, not by a hostname.
func (k *Kubernetes) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	cs, restCfg, err := k.clientset(k.Target.Context)
	if err != nil {
		return fmt.Sprintf("command error: %s", diagnoseClientError(err))
	}

	req := cs.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(k.Target.Pod).
		Namespace(k.Target.Namespace).
		SubResource("exec")
	req.VersionedParams(&corev1.PodExecOptions{
		Container: k.Target.Container,
		Command:   []string{"bash", "-c", command},
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(restCfg, "POST", req.URL())
	if err != nil {
		return fmt.Sprintf("command error: build executor: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out bytes.Buffer
	streamErr := executor.StreamWithContext(runCtx, remotecommand.StreamOptions{
		Stdout: &out,
		Stderr: &out,
	})

	if runCtx.Err() == context.DeadlineExceeded {
		return timeoutMarker(timeout)
	}
	if streamErr != nil && out.Len() == 0 {
		return fmt.Sprintf("command error: %s", diagnoseClientError(streamErr))
	}
	return out.String()
}

func (k *Kubernetes) clientset(kubeContext string) (*kubernetes.Clientset, *rest.Config, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.clients == nil {
		k.clients = map[string]*kubernetes.Clientset{}
		k.configs = map[string]*rest.Config{}
	}
	if cs, ok := k.clients[kubeContext]; ok {
		return cs, k.configs[kubeContext], nil
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("load kubeconfig: %w", err)
		}
	}
	cfg.Timeout = 10 * time.Second

	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build clientset: %w", err)
	}
	k.clients[kubeContext] = cs
	k.configs[kubeContext] = cfg
	return cs, cfg, nil
}

// diagnoseClientError turns a client-go / API server error into an
// operator-actionable message: unauthorized/forbidden, not found, timeout,
// unreachable API server, or connection refused. Any other error is
// returned as its plain text.
func diagnoseClientError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case apierrors.IsUnauthorized(err):
		return "kubernetes API rejected credentials (unauthorized): " + err.Error()
	case apierrors.IsForbidden(err):
		return "kubernetes API denied the request (forbidden, check RBAC): " + err.Error()
	case apierrors.IsNotFound(err):
		return "target pod not found: " + err.Error()
	case apierrors.IsTimeout(err):
		return "kubernetes API call timed out: " + err.Error()
	}
	if _, ok := err.(net.Error); ok {
		return "cannot reach kubernetes API server: " + err.Error()
	}
	if strings.Contains(err.Error(), "connection refused") {
		return "kubernetes API connection refused: " + err.Error()
	}
	return err.Error()
}
