package influxx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"resource-planning-system/shared/config"
)

const MeasurementUtilization = "resource_utilization"

type Client struct {
	client influxdb2.Client
	org    string
	bucket string
}

func New(cfg config.Config) (*Client, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, errors.New("INFLUX_URL/INFLUX_TOKEN/INFLUX_ORG/INFLUX_BUCKET are required")
	}
	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(uint(cfg.InfluxTimeoutMS))
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	return &Client{client: client, org: cfg.InfluxOrg, bucket: cfg.InfluxBucket}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influx not ready")
	}
	return nil
}

func (c *Client) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	p := influxdb2.NewPoint(measurement, tags, fields, ts)
	writeAPI := c.client.WriteAPIBlocking(c.org, c.bucket)
	return writeAPI.WritePoint(ctx, p)
}

// UtilizationSample is one resource's utilization for one evaluated period.
type UtilizationSample struct {
	ResourceID        string
	Department        string
	Role              string
	Category          string
	Policy            string
	AllocatedHours    float64
	EffectiveCapacity float64
	AvailableHours    float64
	UtilizationPct    int
}

// WriteUtilization writes all samples in a single blocking batch stamped at ts.
func (c *Client) WriteUtilization(ctx context.Context, samples []UtilizationSample, ts time.Time) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	if len(samples) == 0 {
		return nil
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if err := c.client.WriteAPIBlocking(c.org, c.bucket).WritePoint(ctx, utilizationPoints(samples, ts)...); err != nil {
		return fmt.Errorf("write %d utilization points: %w", len(samples), err)
	}
	return nil
}

func utilizationPoints(samples []UtilizationSample, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, influxdb2.NewPoint(
			MeasurementUtilization,
			map[string]string{
				"resource_id": s.ResourceID,
				"department":  s.Department,
				"role":        s.Role,
				"category":    s.Category,
				"policy":      s.Policy,
			},
			map[string]any{
				"allocated_hours":    s.AllocatedHours,
				"effective_capacity": s.EffectiveCapacity,
				"available_hours":    s.AvailableHours,
				"utilization_pct":    int64(s.UtilizationPct),
			},
			ts,
		))
	}
	return points
}

func (c *Client) Query(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("influx client not initialized")
	}
	return c.client.QueryAPI(c.org).Query(ctx, flux)
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
