package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/auth"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
)

type Deps struct {
	Modem         Modem
	Status        Status
	Issuer        *auth.Issuer
	Modems        *repository.ModemRepository
	SMS           *repository.SMSRepository
	Webhooks      *repository.WebhookRepository
	APN           modem.APN
	AttachTimeout time.Duration
}

// NewRouter mounts the REST surface under /api/v1. Reads need any valid
// token, changes need the admin role.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	if gin.Mode() != gin.TestMode {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	mh := NewModemHandler(d.Modem, d.Modems, d.Status, d.APN, d.AttachTimeout)
	sh := NewSMSHandler(d.Modem, d.SMS, d.Status)
	nh := NewNetHandler(d.Modem)
	eh := NewEventsHandler(d.Modem)
	wh := NewWebhookHandler(d.Webhooks)
	uh := NewUserHandler(d.Issuer)

	apiGroup := r.Group("/api/v1")
	{
		apiGroup.POST("/login", uh.Login)

		authGroup := apiGroup.Group("/")
		authGroup.Use(AuthMiddleware(d.Issuer))
		{
			authGroup.GET("/modem", mh.GetModem)
			authGroup.GET("/modem/signal", mh.Signal)
			authGroup.GET("/modem/location", mh.Location)
			authGroup.GET("/modems", mh.ListModems)
			authGroup.GET("/sms", sh.ListSMS)
			authGroup.GET("/smsc", sh.GetSMSC)
			authGroup.GET("/events", eh.Stream)

			adminGroup := authGroup.Group("/")
			adminGroup.Use(AdminOnly())
			{
				adminGroup.PUT("/modems/:iccid", mh.UpdateModem)
				adminGroup.POST("/modem/attach", mh.Attach)
				adminGroup.POST("/modem/detach", mh.Detach)
				adminGroup.GET("/modem/operators", mh.ScanNetworks)
				adminGroup.POST("/modem/operator", mh.SetOperator)
				adminGroup.GET("/modem/resolve", mh.Resolve)
				adminGroup.POST("/modem/at", mh.ExecuteAT)

				adminGroup.POST("/sms", sh.SendSMS)
				adminGroup.DELETE("/sms/:index", sh.DeleteSMS)
				adminGroup.PUT("/smsc", sh.SetSMSC)

				adminGroup.POST("/net/tcp", nh.TCPExchange)

				adminGroup.GET("/webhooks", wh.ListWebhooks)
				adminGroup.POST("/webhooks", wh.CreateWebhook)
				adminGroup.DELETE("/webhooks/:id", wh.DeleteWebhook)
			}
		}
	}
	return r
}
