package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sst-resolve/resolve-service/internal/api/dto"
	"github.com/sst-resolve/resolve-service/internal/auth"
	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/service"
	apperrors "github.com/sst-resolve/resolve-service/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket lifecycle operations.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	escalations *service.EscalationService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService, escalations *service.EscalationService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignments: assignments, escalations: escalations}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		CategoryID:       req.CategoryID,
		SubcategoryID:    req.SubcategoryID,
		SubSubcategoryID: req.SubSubcategoryID,
		ScopeID:          req.ScopeID,
		Description:      req.Description,
		DynamicFields:    req.DynamicFields,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, actor.Role)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	details, err := h.tickets.GetTicket(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(details, actor.Role)})
}

// SLAStatus GET /tickets/:id/sla.
func (h *TicketsHandler) SLAStatus(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.SLAStatus(c.UserContext(), auth.ActorFromContext(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": view})
}

// Acknowledge POST /tickets/:id/acknowledge.
func (h *TicketsHandler) Acknowledge(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.AcknowledgeRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Acknowledge(c.UserContext(), auth.ActorFromContext(c), id, req.Message)
	return ticketResult(c, ticket, err)
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	visibility, ok := domain.ParseCommentVisibility(req.Visibility)
	if !ok {
		return apperrors.NewValidationError("invalid visibility", map[string]any{"visibility": req.Visibility})
	}
	actor := auth.ActorFromContext(c)
	ticket, err := h.tickets.AddComment(c.UserContext(), actor, id, req.Text, visibility)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, actor.Role)})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	actor := auth.ActorFromContext(c)
	result, err := h.escalations.Escalate(c.UserContext(), actor, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEscalationResponse(result, actor.Role)})
}

// Reassign POST /tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.assignments.Reassign(c.UserContext(), auth.ActorFromContext(c), id, req.AssigneeID)
	return ticketResult(c, ticket, err)
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Resolve(c.UserContext(), auth.ActorFromContext(c), id)
	return ticketResult(c, ticket, err)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Reopen(c.UserContext(), auth.ActorFromContext(c), id)
	return ticketResult(c, ticket, err)
}

// Rate POST /tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.RateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.Rate(c.UserContext(), auth.ActorFromContext(c), id, req.Score, req.Feedback)
	return ticketResult(c, ticket, err)
}

// ExtendTAT POST /tickets/:id/tat.
func (h *TicketsHandler) ExtendTAT(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.ExtendTATRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.ExtendTAT(c.UserContext(), auth.ActorFromContext(c), id, req.Duration)
	return ticketResult(c, ticket, err)
}

func ticketResult(c *fiber.Ctx, ticket *domain.Ticket, err error) error {
	if err != nil {
		return err
	}
	viewer := auth.ActorFromContext(c).Role
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket, viewer)})
}

func ticketID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("ticket id must be a positive integer", map[string]any{"id": raw})
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

// parseOptionalBody accepts an empty body for routes whose fields are all optional.
func parseOptionalBody(c *fiber.Ctx, req any) error {
	if len(c.Body()) == 0 {
		return dto.Validate(req)
	}
	return parseBody(c, req)
}
