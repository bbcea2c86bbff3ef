package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/repository"
	redisrepo "github.com/hvaleng/garasje/internal/repository/redis"
	"github.com/hvaleng/garasje/internal/service"
	"github.com/hvaleng/garasje/internal/service/detection"
	"github.com/hvaleng/garasje/internal/service/reservation"
)

// maxImageBytes caps detection uploads; camera frames are a few MB.
const maxImageBytes = 16 << 20

// UserLookup resolves a plate to its registered owner.
type UserLookup interface {
	FindByPlate(ctx context.Context, plate string) (*domain.User, error)
}

func NewRouter(
	svcs *service.Services,
	users UserLookup,
	idem *redisrepo.IdempotencyStore,
	detectLimiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/spots", handleListSpots(svcs))
	r.GET("/spots/availability", handleGetAvailability(svcs))
	r.GET("/reservations", handleListReservations(svcs))
	r.GET("/users/by-plate/:plate", handleFindUserByPlate(users))

	r.POST("/spots/:spot/reserve", handleReserve(svcs, idem))
	r.DELETE("/spots/:spot/reservation", handleUnreserve(svcs))
	r.POST("/spots/:spot/claim", handleClaim(svcs))

	r.POST("/detections", RateLimitMiddleware(detectLimiter, logger), handleProcessImage(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List the reconciled spot grid for today
// @Success  200  {array}   domain.ParkingSpot
// @Router   /spots [get]
func handleListSpots(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		spots, err := svcs.Occupancy.Spots(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 5s; the grid changes on every detection pass
		writeJSONWithCache(c, http.StatusOK, spots, "public, max-age=5", true)
	}
}

// @Summary  Get availability counters
// @Success  200  {object}  domain.AvailabilityCounts
// @Router   /spots/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := svcs.Occupancy.Availability(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, counts, "public, max-age=5", true)
	}
}

// @Summary  List raw reservation records
// @Param    date  query  string  false  "YYYY-MM-DD, defaults to today"
// @Success  200  {array}   domain.ReservationWithUser
// @Failure  400  {object}  ErrorResponse
// @Router   /reservations [get]
func handleListReservations(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := time.Now().UTC()
		if q := c.Query("date"); q != "" {
			parsed, err := time.Parse(time.DateOnly, q)
			if err != nil {
				badRequest(c, "invalid date (YYYY-MM-DD)")
				return
			}
			date = parsed
		}

		out, err := svcs.Occupancy.ReservationsForDate(c.Request.Context(), date)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, out, "public, max-age=15", true)
	}
}

// @Summary  Find the registered owner of a license plate
// @Param    plate  path  string  true  "License plate"
// @Success  200  {object}  domain.User
// @Failure  404  {object}  ErrorResponse
// @Router   /users/by-plate/{plate} [get]
func handleFindUserByPlate(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		plate := strings.TrimSpace(c.Param("plate"))
		if plate == "" {
			badRequest(c, "empty plate")
			return
		}

		u, err := users.FindByPlate(c.Request.Context(), plate)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Reserve a spot for today (idempotent)
// @Param    spot  path  string  true  "Spot number, e.g. 3A"
// @Param    req   body  ReserveRequest  true  "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} ReserveResponse
// @Failure  400 {object} ErrorResponse
// @Failure  403 {object} ErrorResponse "plate not owned"
// @Failure  409 {object} ErrorResponse "spot taken / already reserved / idem in progress"
// @Router   /spots/{spot}/reserve [post]
func handleReserve(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		spot := domain.SpotID(c.Param("spot"))

		var req ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		departure, err := parseDeparture(req.EstimatedDeparture)
		if err != nil {
			badRequest(c, "invalid estimated_departure (RFC3339)")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemReserve(string(spot), idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		created, paired, err := svcs.Reservation.Reserve(
			c.Request.Context(),
			req.UserID,
			spot,
			req.LicensePlate,
			departure,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := ReserveResponse{Reservation: created, PairedOccupant: paired}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Release own reservation at a spot
// @Param    spot  path  string  true  "Spot number"
// @Param    req   body  ReleaseRequest  true  "payload"
// @Success  204
// @Failure  403 {object} ErrorResponse "not the owner"
// @Failure  404 {object} ErrorResponse "no reservation at spot"
// @Router   /spots/{spot}/reservation [delete]
func handleUnreserve(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		spot := domain.SpotID(c.Param("spot"))

		var req ReleaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.Reservation.Unreserve(c.Request.Context(), req.UserID, spot); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Claim an anonymously occupied spot
// @Param    spot  path  string  true  "Spot number"
// @Param    req   body  ClaimRequest  true  "payload"
// @Success  201 {object} ClaimResponse
// @Failure  409 {object} ErrorResponse "not claimable / already reserved"
// @Router   /spots/{spot}/claim [post]
func handleClaim(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		spot := domain.SpotID(c.Param("spot"))

		var req ClaimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		departure, err := parseDeparture(req.EstimatedDeparture)
		if err != nil {
			badRequest(c, "invalid estimated_departure (RFC3339)")
			return
		}

		created, err := svcs.Reservation.Claim(
			c.Request.Context(),
			req.UserID,
			spot,
			req.LicensePlate,
			departure,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, ClaimResponse{Reservation: created})
	}
}

// @Summary  Run a detection pass over a camera image
// @Accept   multipart/form-data
// @Param    image  formData  file  true  "Camera frame"
// @Success  200 {object} detection.Result
// @Failure  400 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  502 {object} ErrorResponse "vehicle detector unavailable"
// @Router   /detections [post]
func handleProcessImage(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("image")
		if err != nil {
			badRequest(c, "missing image file")
			return
		}
		if fh.Size > maxImageBytes {
			badRequest(c, "image too large")
			return
		}

		f, err := fh.Open()
		if err != nil {
			badRequest(c, "unreadable image file")
			return
		}
		defer f.Close()

		img, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
		if err != nil {
			badRequest(c, "unreadable image file")
			return
		}

		result, err := svcs.Detection.ProcessImage(c.Request.Context(), img, fh.Filename)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// --- Helpers ---

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// reservation service
	case errors.Is(err, reservation.ErrInvalidSpot):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid spot number"})
	case errors.Is(err, reservation.ErrPlateNotOwned):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "license plate not owned"})
	case errors.Is(err, reservation.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "reservation belongs to another user"})
	case errors.Is(err, reservation.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, reservation.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
	case errors.Is(err, reservation.ErrAlreadyReserved):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user already holds a reservation"})
	case errors.Is(err, reservation.ErrSpotTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "spot already reserved"})
	case errors.Is(err, reservation.ErrNotClaimable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "spot is not anonymously occupied"})
	// detection service
	case errors.Is(err, detection.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty image"})
	case errors.Is(err, detection.ErrDetectorFailure):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "vehicle detector unavailable"})
	// repository
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
