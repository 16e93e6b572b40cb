package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Login verifies credentials. Unknown users and wrong passwords both
// surface as ErrUnauthorized.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	var u User
	err := c.post(ctx, "/users/login", loginRequest{Username: username, Password: password}, &u)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && (he.StatusCode == 400 || he.StatusCode == 401 || he.StatusCode == 404) {
			return nil, fmt.Errorf("login %s: %w", username, ErrUnauthorized)
		}
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListRobots(ctx context.Context) ([]Robot, error) {
	var robots []Robot
	if err := c.get(ctx, "/robots/", &robots); err != nil {
		return nil, err
	}
	return robots, nil
}

func (c *Client) GetRobot(ctx context.Context, id int64) (*Robot, error) {
	var r Robot
	if err := c.get(ctx, fmt.Sprintf("/robots/%d", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetRobotMap(ctx context.Context, robotID int64) (*MapInfo, error) {
	var m MapInfo
	if err := c.get(ctx, fmt.Sprintf("/robots/%d/map", robotID), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMapImage fetches and decodes the robot's occupancy raster.
func (c *Client) GetMapImage(ctx context.Context, robotID int64) (image.Image, error) {
	data, err := c.getRaw(ctx, fmt.Sprintf("/robots/%d/map/image", robotID))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode map image for robot %d: %w", robotID, err)
	}
	return img, nil
}

func (c *Client) CreateRequest(ctx context.Context, userID, robotID int64, targetX, targetY float64) (*DeliveryRequest, error) {
	var r DeliveryRequest
	body := createRequest{UserID: userID, RobotID: robotID, TargetX: targetX, TargetY: targetY}
	if err := c.post(ctx, "/requests/", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetRequest(ctx context.Context, id int64) (*DeliveryRequest, error) {
	var r DeliveryRequest
	if err := c.get(ctx, fmt.Sprintf("/requests/%d", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ListUserRequests(ctx context.Context, userID int64) ([]DeliveryRequest, error) {
	var reqs []DeliveryRequest
	if err := c.get(ctx, fmt.Sprintf("/requests/user/%d", userID), &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// GetTrajectory returns ErrNotFound (wrapped) until the planner has
// stored a path for the request.
func (c *Client) GetTrajectory(ctx context.Context, requestID int64) (*Trajectory, error) {
	var t Trajectory
	if err := c.get(ctx, fmt.Sprintf("/trajectories/request/%d", requestID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) AcceptRequest(ctx context.Context, id int64) (*DeliveryRequest, error) {
	var r DeliveryRequest
	if err := c.patch(ctx, fmt.Sprintf("/requests/%d/accept", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) RejectRequest(ctx context.Context, id int64) (*DeliveryRequest, error) {
	var r DeliveryRequest
	if err := c.patch(ctx, fmt.Sprintf("/requests/%d/reject", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
