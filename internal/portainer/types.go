package portainer

// Endpoint is a Portainer-managed Docker/Swarm environment.
type Endpoint struct {
	ID   int    `json:"Id"`
	Name string `json:"Name"`
	Type int    `json:"Type"`
}

// ContainerSummary mirrors the Docker /containers/json list shape as
// proxied by Portainer.
type ContainerSummary struct {
	ID      string            `json:"Id"`
	Names   []string          `json:"Names"`
	Image   string            `json:"Image"`
	State   string            `json:"State"`
	Status  string            `json:"Status"`
	Labels  map[string]string `json:"Labels"`
}

// ContainerStats is the subset of the Docker stats response this system
// uses to compute a CPU-percent delta, per the same two-sample formula the
// Docker CLI itself uses (docker stats --no-stream).
type ContainerStats struct {
	CPUStats    CPUStats `json:"cpu_stats"`
	PreCPUStats CPUStats `json:"precpu_stats"`
}

type CPUStats struct {
	CPUUsage struct {
		TotalUsage int64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemCPUUsage int64 `json:"system_cpu_usage"`
	OnlineCPUs     int   `json:"online_cpus"`
}

// CPUPercent computes the CPU percentage Docker itself reports for
// `docker stats`, from two stats samples.
func CPUPercent(s ContainerStats) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage - s.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(s.CPUStats.SystemCPUUsage - s.PreCPUStats.SystemCPUUsage)
	if sysDelta <= 0 || cpuDelta <= 0 {
		return 0
	}
	onlineCPUs := s.CPUStats.OnlineCPUs
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}
	return (cpuDelta / sysDelta) * float64(onlineCPUs) * 100.0
}

// ServiceSummary is a Swarm service as returned via the Portainer proxy's
// /docker/services endpoint.
type ServiceSummary struct {
	ID   string `json:"ID"`
	Spec struct {
		Name string `json:"Name"`
	} `json:"Spec"`
	ServiceStatus struct {
		RunningTasks int `json:"RunningTasks"`
		DesiredTasks int `json:"DesiredTasks"`
	} `json:"ServiceStatus"`
}

// TaskSummary is a Swarm task as returned via the Portainer proxy's
// /docker/tasks endpoint.
type TaskSummary struct {
	ID        string `json:"ID"`
	ServiceID string `json:"ServiceID"`
	Status    struct {
		State string `json:"State"`
		Err   string `json:"Err"`
	} `json:"Status"`
	NodeID string `json:"NodeID"`
}

// NodeSummary is a Swarm node as returned via the Portainer proxy's
// /docker/nodes endpoint.
type NodeSummary struct {
	ID string `json:"ID"`
	Spec struct {
		Role        string `json:"Role"`
		Availability string `json:"Availability"`
	} `json:"Spec"`
	Status struct {
		State string `json:"State"`
	} `json:"Status"`
	ManagerStatus *struct {
		Leader bool `json:"Leader"`
	} `json:"ManagerStatus,omitempty"`
}
