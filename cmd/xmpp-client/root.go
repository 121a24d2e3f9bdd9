package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/exavolt/xmpp-client/pkg/xmppblocking"
	"github.com/exavolt/xmpp-client/pkg/xmppcaps"
	"github.com/exavolt/xmpp-client/pkg/xmppclient"
	"github.com/exavolt/xmpp-client/pkg/xmppcore"
	"github.com/exavolt/xmpp-client/pkg/xmppdisco"
	"github.com/exavolt/xmpp-client/pkg/xmppim"
	"github.com/exavolt/xmpp-client/pkg/xmppping"
	"github.com/exavolt/xmpp-client/pkg/xmpptransport"
)

const stopTimeoutDuration = 10 * time.Second

var (
	cfgFile      string
	metricsAddr  string
	logLevel     string
	pingInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "xmpp-client",
	Short:         "Connect to an XMPP server and log the traffic of the account",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := xmppclient.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if metricsAddr != "" {
			go serveMetrics(metricsAddr)
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file; XMPP_* environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on, e.g. :9090")
	rootCmd.Flags().DurationVar(&pingInterval, "ping-interval", 0, "ping the server at this interval; zero disables it")
	rootCmd.AddCommand(capsCmd)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logrus.WithField("addr", addr).Info("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("Metrics server stopped")
	}
}

func run(cfg *xmppclient.Config) error {
	logger := logrus.StandardLogger()
	transport := xmpptransport.NewTCP(xmpptransport.WithLogger(logger))
	client, err := xmppclient.New(cfg, transport, xmppclient.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, unsubscribeStates := client.SubscribeState()
	defer unsubscribeStates()
	authFailures, unsubscribeAuthFailures := client.SubscribeAuthFailures()
	defer unsubscribeAuthFailures()
	queries, unsubscribeQueries := client.SubscribeInfoQueries()
	defer unsubscribeQueries()
	messages, unsubscribeMessages := client.SubscribeMessages()
	defer unsubscribeMessages()
	presences, unsubscribePresences := client.SubscribePresences()
	defer unsubscribePresences()
	rosterPushes, unsubscribeRosterPushes := client.SubscribeRosterPushes()
	defer unsubscribeRosterPushes()

	xmppclient.NewCapsResponder(client, xmppcaps.Default()).Start(ctx)

	logrus.Info("Client start")
	if err := client.Open(ctx); err != nil {
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	var forceStop bool
	stopTimeout := time.NewTimer(stopTimeoutDuration)
	stopTimeout.Stop()

	var pingCh <-chan time.Time
	if pingInterval > 0 {
		pingTicker := time.NewTicker(pingInterval)
		defer pingTicker.Stop()
		pingCh = pingTicker.C
	}
	pending := make(map[string]func(*xmppcore.ClientIQ))

mainloop:
	for {
		select {
		case sig := <-signalCh:
			if forceStop {
				logrus.Infof("Got signal %v. Forcing exit.", sig)
				break mainloop
			}
			logrus.Info("Got signal ", sig)
			go client.Close()
			forceStop = true
			stopTimeout.Reset(stopTimeoutDuration)
		case <-stopTimeout.C:
			logrus.Info("Shutdown timeout. Forcing exit.")
			break mainloop
		case state, ok := <-states:
			if !ok || state == xmppclient.StateClosed {
				break mainloop
			}
			if state == xmppclient.StateOpen {
				logrus.WithField("jid", client.BoundJID().String()).Info("Session established")
				sendRequest(ctx, client, pending, "roster", rosterRequest, logRoster)
				sendRequest(ctx, client, pending, "disco#info", serverInfoRequest, func(iq *xmppcore.ClientIQ) {
					info := logServerInfo(iq)
					if info != nil && info.HasFeature(xmppblocking.NS) {
						sendRequest(ctx, client, pending, "blocklist", xmppblocking.NewBlocklistRequest, logBlocklist)
					}
				})
			}
		case <-pingCh:
			if client.State() != xmppclient.StateOpen {
				continue
			}
			sent := time.Now()
			id, err := client.Ping(ctx, nil)
			if err != nil {
				logrus.WithError(err).Warn("Unable to ping the server")
				continue
			}
			pending[id] = func(iq *xmppcore.ClientIQ) {
				logrus.WithFields(logrus.Fields{
					"stanza": iq.ID,
					"rtt":    time.Since(sent),
				}).Debug("Pong")
			}
		case authErr, ok := <-authFailures:
			if ok {
				logrus.WithFields(logrus.Fields{
					"mechanism": authErr.Mechanism,
					"cause":     authErr.Cause.String(),
				}).Error(authErr.Reason)
			}
		case iq, ok := <-queries:
			if !ok {
				continue
			}
			if xmppblocking.IsPush(iq, client.BoundJID()) {
				acknowledgeBlockingPush(ctx, client, iq)
				continue
			}
			if iq.IsRequest() {
				continue
			}
			if handle, found := pending[iq.ID]; found {
				delete(pending, iq.ID)
				handle(iq)
			}
		case msg, ok := <-messages:
			if ok {
				logrus.WithFields(logrus.Fields{
					"from": jidString(msg.From),
					"type": msg.Type,
				}).Info(msg.Body)
			}
		case push, ok := <-rosterPushes:
			if ok {
				logrus.WithFields(logrus.Fields{
					"jid":          push.Item.JID.String(),
					"subscription": push.Item.Subscription,
					"removed":      push.Item.Removed(),
				}).Info("Roster changed")
			}
		case presence, ok := <-presences:
			if ok {
				logrus.WithFields(logrus.Fields{
					"from": jidString(presence.From),
					"type": presence.Type,
					"show": presence.Show,
				}).Info("Presence")
			}
		}
	}

	if err := client.Err(); err != nil && !forceStop {
		return errors.Wrap(err, "connection ended")
	}
	logrus.Info("Exit.")
	return nil
}

func sendRequest(
	ctx context.Context,
	client *xmppclient.Client,
	pending map[string]func(*xmppcore.ClientIQ),
	what string,
	build func() (*xmppcore.ClientIQ, error),
	handle func(*xmppcore.ClientIQ),
) {
	iq, err := build()
	if err == nil {
		iq.ID, err = client.SendIQ(ctx, iq)
	}
	if err != nil {
		logrus.WithError(err).Warnf("Unable to request %s", what)
		return
	}
	pending[iq.ID] = handle
}

func rosterRequest() (*xmppcore.ClientIQ, error) {
	return xmppim.NewRosterRequest("")
}

func serverInfoRequest() (*xmppcore.ClientIQ, error) {
	return xmppdisco.NewInfoRequest(nil, "")
}

func logRoster(iq *xmppcore.ClientIQ) {
	if iq.Type == xmppcore.IQTypeError {
		logrus.WithField("stanza", iq.ID).Warn("Roster request rejected")
		return
	}
	var roster xmppim.RosterIQResult
	if err := iq.DecodePayload(&roster); err != nil {
		logrus.WithError(err).Warn("Unable to decode the roster")
		return
	}
	for _, item := range roster.Item {
		logrus.WithFields(logrus.Fields{
			"jid":          item.JID.String(),
			"name":         item.Name,
			"subscription": item.Subscription,
			"pending":      item.PendingOut(),
		}).Info("Roster item")
	}
}

func logServerInfo(iq *xmppcore.ClientIQ) *xmppdisco.InfoIQResult {
	if iq.Type == xmppcore.IQTypeError {
		logrus.WithField("stanza", iq.ID).Debug("Server does not answer disco#info")
		return nil
	}
	var info xmppdisco.InfoIQResult
	if err := iq.DecodePayload(&info); err != nil {
		logrus.WithError(err).Warn("Unable to decode the server info")
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"features": info.Features(),
		"ping":     info.HasFeature(xmppping.NS),
		"blocking": info.HasFeature(xmppblocking.NS),
	}).Info("Server info")
	return &info
}

func logBlocklist(iq *xmppcore.ClientIQ) {
	if iq.Type == xmppcore.IQTypeError {
		logrus.WithField("stanza", iq.ID).Warn("Blocklist request rejected")
		return
	}
	var list xmppblocking.Blocklist
	if err := iq.DecodePayload(&list); err != nil {
		logrus.WithError(err).Warn("Unable to decode the blocklist")
		return
	}
	for _, jid := range list.JIDs() {
		logrus.WithField("jid", jid.String()).Info("Blocked")
	}
}

// acknowledgeBlockingPush answers a blocklist change (XEP-0191  3.3).
func acknowledgeBlockingPush(ctx context.Context, client *xmppclient.Client, iq *xmppcore.ClientIQ) {
	push, err := xmppblocking.ParsePush(iq)
	if err != nil {
		logrus.WithError(err).Warn("Unable to decode the blocklist change")
		return
	}
	if err := client.Send(ctx, iq.AsResponse()); err != nil {
		logrus.WithError(err).Warn("Unable to acknowledge the blocklist change")
	}
	for _, jid := range push.JIDs {
		logrus.WithFields(logrus.Fields{"jid": jid.String(), "blocked": push.Blocked}).Info("Blocklist changed")
	}
	if !push.Blocked && len(push.JIDs) == 0 {
		logrus.Info("Blocklist cleared")
	}
}

func jidString(jid *xmppcore.JID) string {
	if jid == nil {
		return ""
	}
	return jid.String()
}
