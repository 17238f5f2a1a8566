/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/provideplatform/checkout/checkout"
	"github.com/provideplatform/checkout/common"
	"github.com/provideplatform/checkout/issuer"
	_ "github.com/provideplatform/checkout/watcher"
)

const runloopSleepInterval = 250 * time.Millisecond
const runloopTickInterval = 5000 * time.Millisecond

const defaultListenAddr = "0.0.0.0:8080"

var (
	cancelF     context.CancelFunc
	closing     uint32
	shutdownCtx context.Context
	sigs        chan os.Signal

	srv *http.Server
)

func main() {
	common.RequireCheckoutEnvironment()

	common.Log.Debug("installing signal handlers for checkout API")
	installSignalHandlers()

	runAPI()

	timer := time.NewTicker(runloopTickInterval)
	defer timer.Stop()

	for !shuttingDown() {
		select {
		case <-timer.C:
			// no-op
		case sig := <-sigs:
			common.Log.Debugf("received signal: %s", sig)
			srv.Shutdown(shutdownCtx)
			shutdown()
		case <-shutdownCtx.Done():
			close(sigs)
		default:
			time.Sleep(runloopSleepInterval)
		}
	}

	common.Log.Debug("exiting checkout API")
	cancelF()
}

func installSignalHandlers() {
	sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	shutdownCtx, cancelF = context.WithCancel(context.Background())
}

func shutdown() {
	if atomic.AddUint32(&closing, 1) == 1 {
		common.Log.Debug("shutting down checkout API")
		cancelF()
	}
}

func shuttingDown() bool {
	return (atomic.LoadUint32(&closing) > 0)
}

func listenAddr() string {
	addr := os.Getenv("API_LISTEN_ADDR")
	if addr == "" {
		host := os.Getenv("API_HOST")
		port := os.Getenv("API_PORT")
		if port != "" {
			addr = fmt.Sprintf("%s:%s", host, port)
		} else {
			addr = defaultListenAddr
		}
	}
	return addr
}

func runAPI() {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	checkout.InstallAPI(r)
	issuer.InstallAPI(r)

	r.GET("/status", statusHandler)

	srv = &http.Server{
		Addr:    listenAddr(),
		Handler: r,
	}

	go func() {
		common.Log.Debugf("checkout API listening on %s", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			common.Log.Panicf("failed to serve checkout API; %s", err.Error())
		}
	}()
}

func statusHandler(c *gin.Context) {
	c.JSON(200, nil)
}
